// Package gemini connects the quiz providers to Google's Gemini API.
//
// Client implements generation.Completer: it sends one prompt with a JSON
// response type and translates safety blocks and empty answers into
// generation errors. Prompts, parsing and retries live in the generation
// package, so this adapter stays a thin translation layer over
// google.golang.org/genai.
package gemini
