package gate

import "regexp"

// privilegedMarkers matches conversation-boundary and history framing an
// inbound subject could use to spoof a higher-trust turn inside their own
// payload — chat-template delimiters, role-prefix lines, and instruction
// fences (§4.6 "Anti-spoofing").
var privilegedMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\|[a-z_]+\|>`),                  // <|im_start|>, <|system|>, ...
	regexp.MustCompile(`(?i)\[/?(system|inst|s)\]`),          // [SYSTEM], [INST], [/INST], [S]
	regexp.MustCompile(`(?im)^\s*(system|assistant|human|user)\s*:\s*`), // role-prefixed lines
	regexp.MustCompile(`(?i)#{2,}\s*(system|instruction)s?\b`), // ## System, ### Instructions
}

// Scrub removes privileged framing markers from inbound text before it is
// attached to a task's initial input (§4.6). It does not alter anything
// else about the payload — scrubbing is structural, not semantic
// filtering, and it runs once at the gate rather than per-DMA so every
// downstream consumer sees the same sanitized input.
func Scrub(input string) string {
	out := input
	for _, re := range privilegedMarkers {
		out = re.ReplaceAllString(out, "")
	}
	return out
}
