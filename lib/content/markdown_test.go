// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"slices"
	"testing"
)

func TestUnwrapFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		document string
		want     string
	}{
		{
			name:     "markdown fence",
			document: "```markdown\n# Title\n\nBody text.\n```",
			want:     "# Title\n\nBody text.",
		},
		{
			name:     "md fence with surrounding whitespace",
			document: "\n\n```md\n- one\n- two\n```\n\n",
			want:     "- one\n- two",
		},
		{
			name:     "untagged fence",
			document: "```\nplain\n```",
			want:     "plain",
		},
		{
			name:     "code fence kept",
			document: "```go\nfunc main() {}\n```",
			want:     "```go\nfunc main() {}\n```",
		},
		{
			name:     "text outside fence kept",
			document: "# Title\n\n```markdown\ninner\n```",
			want:     "# Title\n\n```markdown\ninner\n```",
		},
		{
			name:     "unclosed fence kept",
			document: "```markdown\n# Title\nbody",
			want:     "```markdown\n# Title\nbody",
		},
		{
			name:     "no fence",
			document: "# Title\nbody",
			want:     "# Title\nbody",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if got := UnwrapFence(testCase.document); got != testCase.want {
				t.Errorf("UnwrapFence() = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestOutline(t *testing.T) {
	t.Parallel()

	document := "# Payment System\n\nIntro.\n\n## Flow `v2`\n\ntext\n\n### Errors *and* retries\n\n```\n# not a heading\n```\n"
	got := Outline(document)
	want := []Heading{
		{Level: 1, Text: "Payment System"},
		{Level: 2, Text: "Flow v2"},
		{Level: 3, Text: "Errors and retries"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("Outline() = %+v, want %+v", got, want)
	}
}
