package knowledge

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

const defaultSchoolName = "the school"

// SystemPrompt builds the assistant instruction from the business profile.
// Map sections are rendered in key order so the prompt is stable.
func (k *Knowledge) SystemPrompt() string {
	b := k.Business
	name := b.SchoolName
	if name == "" {
		name = defaultSchoolName
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a helpful assistant for %s.\n", name)
	sb.WriteString("Answer questions from parents and students briefly and politely. ")
	sb.WriteString("If you do not know something, suggest contacting the school office.\n")

	writeLine(&sb, "Location", b.Location)
	writeLine(&sb, "Opening Hours", b.OpeningHours)
	writeSection(&sb, "Contacts", b.Contact, "- ")
	writeLine(&sb, "Email", b.Email)
	writeLine(&sb, "Website", b.Website)
	writeSection(&sb, "Academics", b.Academics, "• ")
	writeSection(&sb, "Co-Curricular", b.CoCurricular, "• ")
	writeSection(&sb, "Services", b.Services, "• ")

	if len(k.Fees) > 0 {
		sb.WriteString("\nFees:\n")
		sb.WriteString(k.FeeSummary())
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String())
}

func writeLine(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "\n%s: %s", label, value)
}

func writeSection(sb *strings.Builder, title string, entries map[string]string, bullet string) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n\n%s:", title)
	for _, key := range slices.Sorted(maps.Keys(entries)) {
		fmt.Fprintf(sb, "\n%s%s: %s", bullet, key, entries[key])
	}
}
