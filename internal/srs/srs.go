package srs

import (
	"math"
	"time"
)

// Rating is the user's recall assessment for one review.
type Rating string

const (
	Forgot Rating = "forgot"
	Hard   Rating = "hard"
	Medium Rating = "medium"
	Easy   Rating = "easy"
)

// IsValid reports whether r is one of the four known ratings.
func (r Rating) IsValid() bool {
	switch r {
	case Forgot, Hard, Medium, Easy:
		return true
	}
	return false
}

// Params holds the constants of the transition table.
type Params struct {
	InitialInterval   int     // interval assumed when none is stored
	InitialEase       float64 // ease assumed when none is stored
	MinEase           float64 // floor applied after forgot and hard
	HardMultiplier    float64 // interval growth for hard
	EasyBonus         float64 // extra interval growth for easy
	ForgotEasePenalty float64
	HardEasePenalty   float64
	EasyEaseBonus     float64
}

// DefaultParams returns the table used by the service.
func DefaultParams() *Params {
	return &Params{
		InitialInterval:   1,
		InitialEase:       2.5,
		MinEase:           1.3,
		HardMultiplier:    1.2,
		EasyBonus:         1.3,
		ForgotEasePenalty: 0.2,
		HardEasePenalty:   0.15,
		EasyEaseBonus:     0.15,
	}
}

// State is the memory-strength part of a card.
type State struct {
	Interval   int     // days until the next review, always >= 1 after NextState
	EaseFactor float64 // interval multiplier
}

// NextState applies one rating to the current state.
//
// A zero or negative interval and a non-positive ease are treated as unset
// and replaced by the initial values. Unknown ratings return the state
// unchanged.
func (p *Params) NextState(current State, rating Rating) State {
	interval := current.Interval
	if interval < 1 {
		interval = p.InitialInterval
	}
	ease := current.EaseFactor
	if ease <= 0 {
		ease = p.InitialEase
	}

	next := State{Interval: interval, EaseFactor: ease}
	switch rating {
	case Forgot:
		next.Interval = 1
		next.EaseFactor = math.Max(p.MinEase, ease-p.ForgotEasePenalty)
	case Hard:
		next.Interval = truncate(float64(interval) * p.HardMultiplier)
		next.EaseFactor = math.Max(p.MinEase, ease-p.HardEasePenalty)
	case Medium:
		next.Interval = truncate(float64(interval) * ease)
	case Easy:
		next.Interval = truncate(float64(interval) * ease * p.EasyBonus)
		next.EaseFactor = ease + p.EasyEaseBonus
	}

	if next.Interval < 1 {
		next.Interval = 1
	}
	return next
}

// Schedule applies rating and returns the new state with the date of the
// next review, interval days after now.
func (p *Params) Schedule(current State, rating Rating, now time.Time) (State, time.Time) {
	next := p.NextState(current, rating)
	return next, NextDueDate(now, next.Interval)
}

// NextDueDate returns now moved forward by interval calendar days.
func NextDueDate(now time.Time, interval int) time.Time {
	return now.AddDate(0, 0, interval)
}

func truncate(v float64) int {
	return int(math.Trunc(v))
}
