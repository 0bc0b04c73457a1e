package view

import (
	"errors"
	"fmt"
	"strings"
)

// Column is a sortable field of a market record.
type Column string

const (
	ColumnSymbol Column = "symbol"
	ColumnPrice  Column = "price"
	ColumnChange Column = "change"
	ColumnVolume Column = "volume"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type Filter string

const (
	FilterAll     Filter = "all"
	FilterGainers Filter = "gainers"
	FilterLosers  Filter = "losers"
	FilterVolume  Filter = "volume"
)

var (
	ErrInvalidColumn    = errors.New("invalid sort column")
	ErrInvalidDirection = errors.New("invalid sort direction")
	ErrInvalidFilter    = errors.New("invalid filter")
)

// Params are the user controlled inputs of the view.
type Params struct {
	Query     string    `json:"search"`
	Filter    Filter    `json:"filter"`
	Sort      Column    `json:"sort"`
	Direction Direction `json:"direction"`
}

// DefaultParams sorts by volume, highest first, with no search or filter.
func DefaultParams() Params {
	return Params{Filter: FilterAll, Sort: ColumnVolume, Direction: Desc}
}

func ParseColumn(s string) (Column, error) {
	switch c := Column(strings.ToLower(strings.TrimSpace(s))); c {
	case ColumnSymbol, ColumnPrice, ColumnChange, ColumnVolume:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidColumn, s)
}

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Asc, Desc:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterAll, FilterGainers, FilterLosers, FilterVolume:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
}

// Merge returns p with every non-empty argument applied. Invalid values are
// rejected and p is returned unchanged.
func (p Params) Merge(query *string, filter, sort, direction string) (Params, error) {
	out := p
	if query != nil {
		out.Query = strings.TrimSpace(*query)
	}
	if filter != "" {
		f, err := ParseFilter(filter)
		if err != nil {
			return p, err
		}
		out.Filter = f
	}
	if sort != "" {
		c, err := ParseColumn(sort)
		if err != nil {
			return p, err
		}
		out.Sort = c
	}
	if direction != "" {
		d, err := ParseDirection(direction)
		if err != nil {
			return p, err
		}
		out.Direction = d
	}
	return out, nil
}

// ParseParams builds Params from strings, using defaults for empty values.
func ParseParams(query, filter, sort, direction string) (Params, error) {
	return DefaultParams().Merge(&query, filter, sort, direction)
}

// ToggleSort flips the direction when c is already the sort column and
// otherwise switches to c, highest first.
func (p Params) ToggleSort(c Column) Params {
	if p.Sort == c {
		if p.Direction == Desc {
			p.Direction = Asc
		} else {
			p.Direction = Desc
		}
		return p
	}
	p.Sort = c
	p.Direction = Desc
	return p
}
