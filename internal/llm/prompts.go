package llm

import (
	"fmt"
	"strings"
)

// InternalSentinel prefixes every prompt questlog sends. When the claude CLI
// provider is used, hook integrations in that session can recognize and
// ignore questlog's own traffic.
const InternalSentinel = "[questlog-internal]"

// maxKnownLabels caps how many existing concepts are listed in the prompt.
const maxKnownLabels = 200

// AnalysisPrompt asks the model to decompose a journal entry into actions,
// skills and characteristics. known lists existing concept labels so the
// model reuses them instead of inventing near-duplicates.
func AnalysisPrompt(entry string, known []string) string {
	existing := "(none yet)"
	if len(known) > 0 {
		if len(known) > maxKnownLabels {
			known = known[:maxKnownLabels]
		}
		existing = strings.Join(known, ", ")
	}

	return InternalSentinel + "\n" + fmt.Sprintf(`You are a personal growth analyst. Decompose this journal entry into a small concept graph.

JOURNAL ENTRY:
%s

EXISTING CONCEPTS (reuse these exact labels when they fit):
%s

Levels:
- action: a concrete thing the person did in this entry (e.g., "Morning run", "Refactored parser")
- skill: an ability that actions build (e.g., "Endurance", "Software design")
- characteristic: a broad trait that skills build (e.g., "Vitality", "Craftsmanship")

Rules:
- Every action lists 1-3 skill parents; every skill lists 1-2 characteristic parents
- Parent weights are between 0.01 and 1.0 and say how strongly the child contributes
- Action "weight" is between 0.1 and 1.0 and says how significant the action was in this entry
- "duration" is your estimate of the total effort, e.g. "30 mins" or "2 hours"; use "" if unknown
- Labels are short title-case phrases (1-4 words)
- Return ONLY a JSON object, no other text

Return a JSON object:
{
  "duration": "45 mins",
  "nodes": {
    "Morning run": {"type": "action", "weight": 0.8, "parents": {"Endurance": 0.9}},
    "Endurance": {"type": "skill", "parents": {"Vitality": 0.8}},
    "Vitality": {"type": "characteristic"}
  }
}

If the entry describes nothing the person did, return: {"nodes": {}}`, entry, existing)
}
