/*
Package domain contains the core models of the anamnesis questionnaire.

It defines the closed set of conversation states, the live Session, the
persisted Record and the sentinel errors shared by every adapter. The package
is free of I/O so that the transition table and the orchestrator can be tested
without process-wide side effects.

# Key Entities

  - State: One position in the fixed forward question sequence.
  - Checkpoint: The signal raised when a transition needs the generation service.
  - Session: The live, mutable conversation (state plus captured fields).
  - Record: The immutable result of a completed session, handed to persistence.
*/
package domain
