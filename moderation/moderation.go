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

// Package moderation sanitizes peer-chosen display names through a
// pluggable, possibly-remote classifier, falling back to a local regex
// sanitizer on any external failure.
package moderation

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/probeum/probewatch/internal/xlog"
)

// MaxNameLen is the hard truncation length applied regardless of which
// path sanitizes the name.
const MaxNameLen = 30

// localMaxNameLen is the tighter truncation the local regex-only
// sanitizer applies when no external classifier is configured.
const localMaxNameLen = 20

// Reason is a moderation rejection category.
type Reason string

const (
	ReasonPolitical Reason = "political"
	ReasonOffensive Reason = "offensive"
	ReasonReligious Reason = "religious"
	ReasonOther     Reason = "other"
)

// HumanReason maps a rejection category to a user-facing message, with a
// generic fallback for unknown reasons.
func HumanReason(r Reason) string {
	switch r {
	case ReasonPolitical:
		return "That name reads as a political statement. Try something else."
	case ReasonOffensive:
		return "That name was flagged as offensive. Try something else."
	case ReasonReligious:
		return "That name references religion in a way we can't allow. Try something else."
	default:
		return "That name couldn't be accepted. Try something else."
	}
}

// Classifier is the pluggable external moderation service: it returns
// either a sanitized name, or a rejection reason.
type Classifier interface {
	Classify(ctx context.Context, name string) (sanitized string, reason Reason, rejected bool, err error)
}

var localStrip = regexp.MustCompile(`[^\w\s\-_.!/]`)

// Sanitizer applies the reference sanitize(name) -> (name, nil) |
// (nil, reason) algorithm: trim, reject empty, truncate, optionally ask
// an external classifier, otherwise strip disallowed characters locally.
// Classification runs off the caller's event loop since it may block on
// a remote call; Sanitize itself does no loop-affinity assumption and is
// safe to call from a separate goroutine per session.
type Sanitizer struct {
	classifier Classifier
	limiter    *rate.Limiter
	log        *xlog.Logger
}

// NewSanitizer returns a Sanitizer. classifier may be nil, in which case
// the local regex path is always used. limiter throttles calls into a
// configured classifier so a misbehaving remote service cannot be asked
// to classify faster than the process can afford.
func NewSanitizer(classifier Classifier) *Sanitizer {
	return &Sanitizer{
		classifier: classifier,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		log:        xlog.Root().New("component", "moderation"),
	}
}

// Sanitize runs the full pipeline against a candidate name.
func (s *Sanitizer) Sanitize(ctx context.Context, name string) (string, Reason, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ReasonOther, true
	}
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}

	if s.classifier != nil {
		if err := s.limiter.Wait(ctx); err == nil {
			sanitized, reason, rejected, err := s.classifier.Classify(ctx, name)
			if err == nil {
				if rejected {
					return "", reason, true
				}
				return sanitized, "", false
			}
			s.log.Warn("moderator call failed, falling back to local sanitizer", "err", err)
		}
	}

	cleaned := localStrip.ReplaceAllString(name, "")
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > localMaxNameLen {
		cleaned = cleaned[:localMaxNameLen]
	}
	if cleaned == "" {
		return "", ReasonOther, true
	}
	return cleaned, "", false
}
