// Package transcript post-processes speech-to-text output before it
// reaches the conversation agent.
//
// Two stages run in order:
//
//  1. Normalize — whitespace and punctuation cleanup. Recognizers pad
//     output with stray spaces and artifacts like a lone "." for silent
//     audio; an utterance that is empty after normalization should not
//     produce a conversation turn.
//
//  2. Corrector — phonetic vocabulary alignment. Learners' Portuguese is
//     frequently misrecognized into near-homophones; the corrector snaps
//     out-of-vocabulary words back onto the configured lesson vocabulary
//     using Double Metaphone codes and Jaro-Winkler ranking.
package transcript

import "strings"

// Normalize trims the transcript, collapses interior whitespace runs to a
// single space, and strips leading and trailing punctuation artifacts.
// The empty string result means the recognizer heard nothing usable.
func Normalize(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	out := strings.Join(fields, " ")
	out = strings.Trim(out, ".,;:!?…-–—\"'«»“” ")
	return strings.TrimSpace(out)
}
