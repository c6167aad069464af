// Package services implements the driving port interfaces.
//
// The question-answering pipeline runs through these services in order:
// IngestService stages converted documents, IndexService chunks, embeds and
// stores them, RetrievalService ranks chunks for a query, AnswerService
// assembles context and streams an answer, and Session serialises turns of
// one conversation. Services talk to the outside world only through driven
// ports.
package services
