package bridge

import "strings"

// DefaultMaxLines is how many trailing lines of a snapshot are parsed.
const DefaultMaxLines = 10

// Record is one topic/payload pair parsed from a line of console text.
type Record struct {
	Topic   string
	Payload string
}

// lineBreaks normalises \r\n and lone \r to \n.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Parse turns the last maxLines lines of snapshot into records, oldest
// first. maxLines <= 0 means DefaultMaxLines. A final line break ends the
// last line and does not start an empty one. Lines that do not carry at
// least a topic and one payload token are skipped.
func Parse(snapshot string, maxLines int) []Record {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	text := strings.TrimSuffix(lineBreaks.Replace(snapshot), "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}

	var records []Record
	for _, line := range lines {
		if r, ok := ParseLine(line); ok {
			records = append(records, r)
		}
	}
	return records
}

// ParseLine parses a single line: the first whitespace-delimited token is
// the topic, the remaining tokens joined by single spaces are the payload.
func ParseLine(line string) (Record, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Record{}, false
	}
	return Record{Topic: fields[0], Payload: strings.Join(fields[1:], " ")}, true
}
