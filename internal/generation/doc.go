// Package generation turns a text-completion model into the provider
// capabilities: question generation, categorization, emoji illustration,
// validation and health probes. Model clients only implement Completer;
// prompts, response parsing and transient-error retries live here.
package generation
