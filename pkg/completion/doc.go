// Package completion turns accumulated session answers into narrative assessments.
//
// A Client owns the prompt set, the bounded retry and the parsing of the
// interim response. The network call itself is delegated to a Backend, so the
// same prompts and parsing run over OpenAI, Anthropic, Gemini or an eino
// chat model interchangeably.
package completion
