// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package project

import (
	"regexp"
	"strconv"
	"strings"
)

// Segment is one numbered page extracted from the book text.
type Segment struct {
	// Number is the page label as written, e.g. "P1".
	Number string `json:"page_number"`

	// Index is the 1-based position in the book.
	Index int `json:"page_index"`

	// Content is the page text with the label stripped.
	Content string `json:"content"`
}

// pageMarker matches a page label at the start of a line: "P3", "p12:",
// "P5： the text". Both ASCII and fullwidth colons appear in real
// manuscripts.
var pageMarker = regexp.MustCompile(`^[Pp](\d{1,3})\s*[:：]?\s*(.*)$`)

/*
ParseContent segments book text into numbered pages.

Description: A line starting with a page label ("P1") opens a new segment;
everything until the next label belongs to it. Text on the label line after
a colon is kept as page content. Lines before the first label and blank
lines are dropped. Labels keep their written form but segments are indexed
in order of appearance.
*/
func ParseContent(content string) []Segment {
	var segments []Segment
	var current *Segment
	var lines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(lines, "\n"))
		segments = append(segments, *current)
		current, lines = nil, nil
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := pageMarker.FindStringSubmatch(line)
		if m == nil {
			if current != nil {
				lines = append(lines, line)
			}
			continue
		}

		flush()

		n, _ := strconv.Atoi(m[1])
		current = &Segment{
			Number: "P" + strconv.Itoa(n),
			Index:  len(segments) + 1,
		}
		if rest := strings.TrimSpace(m[2]); rest != "" {
			lines = append(lines, rest)
		}
	}

	flush()
	return segments
}
