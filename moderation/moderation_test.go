// Copyright 2021 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package moderation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLocalPathStripsDisallowedCharacters(t *testing.T) {
	s := NewSanitizer(nil)
	cleaned, _, rejected := s.Sanitize(context.Background(), "  Cool<Peer>!! ")
	assert.False(t, rejected)
	assert.NotContains(t, cleaned, "<")
	assert.NotContains(t, cleaned, ">")
}

func TestSanitizeRejectsEmptyAfterStrip(t *testing.T) {
	s := NewSanitizer(nil)
	_, reason, rejected := s.Sanitize(context.Background(), "<<<>>>")
	assert.True(t, rejected)
	assert.Equal(t, ReasonOther, reason)
}

func TestSanitizeTruncatesLongNames(t *testing.T) {
	s := NewSanitizer(nil)
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	cleaned, _, rejected := s.Sanitize(context.Background(), long)
	assert.False(t, rejected)
	assert.LessOrEqual(t, len(cleaned), localMaxNameLen)
}

type stubClassifier struct {
	sanitized string
	reason    Reason
	rejected  bool
	err       error
}

func (c stubClassifier) Classify(ctx context.Context, name string) (string, Reason, bool, error) {
	return c.sanitized, c.reason, c.rejected, c.err
}

func TestSanitizeUsesClassifierWhenConfigured(t *testing.T) {
	s := NewSanitizer(stubClassifier{rejected: true, reason: ReasonPolitical})
	_, reason, rejected := s.Sanitize(context.Background(), "some name")
	assert.True(t, rejected)
	assert.Equal(t, ReasonPolitical, reason)
}

func TestSanitizeFallsBackOnClassifierError(t *testing.T) {
	s := NewSanitizer(stubClassifier{err: assert.AnError})
	cleaned, _, rejected := s.Sanitize(context.Background(), "Valid Name")
	assert.False(t, rejected)
	assert.Equal(t, "Valid Name", cleaned)
}

func TestHumanReasonHasFallback(t *testing.T) {
	assert.NotEmpty(t, HumanReason(Reason("unknown-reason")))
}
