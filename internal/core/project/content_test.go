// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContent_BasicSegmentation(t *testing.T) {
	text := "P1\nA little fox wakes up.\nThe sun is rising.\nP2\nShe walks to the river."

	segments := ParseContent(text)

	require.Len(t, segments, 2)
	assert.Equal(t, "P1", segments[0].Number)
	assert.Equal(t, 1, segments[0].Index)
	assert.Equal(t, "A little fox wakes up.\nThe sun is rising.", segments[0].Content)
	assert.Equal(t, "P2", segments[1].Number)
	assert.Equal(t, 2, segments[1].Index)
	assert.Equal(t, "She walks to the river.", segments[1].Content)
}

func TestParseContent_InlineAndColonVariants(t *testing.T) {
	testCases := []struct {
		name    string
		text    string
		number  string
		content string
	}{
		{
			name:    "ascii colon with inline text",
			text:    "P1: cat in garden",
			number:  "P1",
			content: "cat in garden",
		},
		{
			name:    "fullwidth colon",
			text:    "P3：小狐狸在河边",
			number:  "P3",
			content: "小狐狸在河边",
		},
		{
			name:    "lowercase label",
			text:    "p7 the moon is out",
			number:  "P7",
			content: "the moon is out",
		},
		{
			name:    "inline text plus following lines",
			text:    "P2: first line\nsecond line",
			number:  "P2",
			content: "first line\nsecond line",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			segments := ParseContent(testCase.text)

			require.Len(t, segments, 1)
			assert.Equal(t, testCase.number, segments[0].Number)
			assert.Equal(t, testCase.content, segments[0].Content)
		})
	}
}

func TestParseContent_PreambleAndBlanksDropped(t *testing.T) {
	text := "Title: The Fox\nby someone\n\nP1\n\nHello.\n\n\nP2\nGoodbye.\n"

	segments := ParseContent(text)

	require.Len(t, segments, 2)
	assert.Equal(t, "Hello.", segments[0].Content)
	assert.Equal(t, "Goodbye.", segments[1].Content)
}

func TestParseContent_IndexFollowsAppearanceOrder(t *testing.T) {
	// Manuscripts sometimes arrive with labels out of order; the written
	// label survives but the index reflects position.
	segments := ParseContent("P5 five\nP2 two")

	require.Len(t, segments, 2)
	assert.Equal(t, "P5", segments[0].Number)
	assert.Equal(t, 1, segments[0].Index)
	assert.Equal(t, "P2", segments[1].Number)
	assert.Equal(t, 2, segments[1].Index)
}

func TestParseContent_NoLabels(t *testing.T) {
	assert.Empty(t, ParseContent("just prose with no page markers"))
	assert.Empty(t, ParseContent(""))
}

func TestParseContent_EmptyLabelledPage(t *testing.T) {
	segments := ParseContent("P1\nP2 something")

	require.Len(t, segments, 2)
	assert.Equal(t, "", segments[0].Content)
	assert.Equal(t, "something", segments[1].Content)
}
