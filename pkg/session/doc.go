/*
Package session serialises access to live questionnaire sessions.

A Manager hands out one exclusive claim per session id. The claim covers the
whole step (load, transition, generation call, write back), so two messages for
the same session never interleave, while different sessions proceed in
parallel. An optional DistributedLocker extends the claim across replicas that
share a Redis session store.
*/
package session
