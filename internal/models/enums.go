package models

import "strings"

type MarketKind string

const (
	MarketKindCrypto        MarketKind = "crypto"
	MarketKindSports        MarketKind = "sports"
	MarketKindPredictionApp MarketKind = "prediction_app"
)

func (k MarketKind) Valid() bool {
	switch k {
	case MarketKindCrypto, MarketKindSports, MarketKindPredictionApp:
		return true
	}
	return false
}

// ParseMarketKind accepts any case and the "prediction-app" spelling.
func ParseMarketKind(raw string) (MarketKind, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, "-", "_")
	k := MarketKind(v)
	return k, k.Valid()
}

type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionOver  Direction = "over"
	DirectionUnder Direction = "under"
	DirectionYes   Direction = "yes"
	DirectionNo    Direction = "no"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionOver, DirectionUnder, DirectionYes, DirectionNo:
		return true
	}
	return false
}

// IsLong reports whether the direction profits from the value rising (up/over/yes).
func (d Direction) IsLong() bool {
	switch d {
	case DirectionUp, DirectionOver, DirectionYes:
		return true
	}
	return false
}

func ParseDirection(raw string) (Direction, bool) {
	d := Direction(strings.ToLower(strings.TrimSpace(raw)))
	return d, d.Valid()
}

type SignalStatus string

const (
	SignalStatusOpen      SignalStatus = "open"
	SignalStatusResolved  SignalStatus = "resolved"
	SignalStatusCancelled SignalStatus = "cancelled"
)

func ParseSignalStatus(raw string) (SignalStatus, bool) {
	st := SignalStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch st {
	case SignalStatusOpen, SignalStatusResolved, SignalStatusCancelled:
		return st, true
	}
	return st, false
}

type SignalResult string

const (
	SignalResultWin  SignalResult = "win"
	SignalResultLose SignalResult = "lose"
	SignalResultPush SignalResult = "push"
)
