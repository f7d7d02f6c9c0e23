/*
Package ports defines the driven ports (interfaces) of the questionnaire core.

These interfaces decouple the orchestrator from storage, generation and
extraction backends, so each can be swapped by configuration.

# Key Interfaces

  - SessionStore: Persists live sessions between steps (memory or Redis).
  - RecordStore: Receives one Record per completed session and lists history.
  - Generator: Produces the interim and final assessments.
  - TextExtractor: Turns an image of lab results into text.
  - DistributedLocker: Serialises access to one session across replicas.
*/
package ports
