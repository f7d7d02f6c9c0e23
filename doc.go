/*
Package anamnesis runs a guided symptom and history questionnaire as a
deterministic conversation state machine with two language-model checkpoints.

A session walks a fixed sequence of questions (diagnosis, analyses, symptoms,
onset, context, emotional state, life events). After the life events answer the
collected facts are sent to a Generator for an interim narrative that ends with
a short follow-up question. Four deeper questions follow, and the last answer
triggers the final narrative. The completed session is then stored as a Record
and the session itself is removed.

# Guarantees

  - Steps for one session id run one at a time; different ids never wait on each other.
  - A failed generation call leaves the session exactly as it was, so the same
    message can be sent again.
  - A failure to store the finished record does not hide the final narrative:
    the Reply is returned together with a *PersistenceError.

# Usage

	store := memory.NewStore()
	backend := fake.Backend{}
	svc, err := anamnesis.New(
		session.NewManager(store),
		completion.New(backend),
		anamnesis.WithRecordStore(file.NewRecordStore("")),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx := anamnesis.WithUserID(context.Background(), "user-1")
	reply, err := svc.Handle(ctx, "", "")   // opens a session
	reply, err = svc.Handle(ctx, reply.SessionID, "гастрит")

Transports live under pkg/adapters: an HTTP API (pkg/adapters/http) and an MCP
server (pkg/adapters/mcp). The cmd/anamnesis binary wires them from configuration.
*/
package anamnesis
