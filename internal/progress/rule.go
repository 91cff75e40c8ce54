// Package progress 将子任务完成情况换算为习惯的完成度。
package progress

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 是规则的持久化名称
type Kind string

const (
	KindAll        Kind = "ALL"
	KindPercentage Kind = "PERCENTAGE"
	KindPoints     Kind = "POINTS"
)

const (
	MinThreshold = 1
	MaxThreshold = 100
)

// ErrInvalidRule 在规则名称或阈值非法时返回
var ErrInvalidRule = errors.New("invalid progress rule")

// Rule 是封闭的规则集合，只能是 AllRequired、Percentage、Points 之一
type Rule interface {
	Kind() Kind
	rule()
}

// AllRequired 要求全部必做子任务完成
type AllRequired struct{}

// Percentage 以完成子任务数量占比与阈值比较
type Percentage struct {
	Threshold int
}

// Points 以完成子任务的权重和占比与阈值比较
type Points struct {
	Threshold int
}

func (AllRequired) Kind() Kind { return KindAll }
func (Percentage) Kind() Kind  { return KindPercentage }
func (Points) Kind() Kind      { return KindPoints }

func (AllRequired) rule() {}
func (Percentage) rule()  {}
func (Points) rule()      {}

// ParseRule 由存储的名称与阈值构造规则；名称为空时视为 ALL
func ParseRule(kind string, threshold int) (Rule, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(kind))) {
	case "", KindAll:
		return AllRequired{}, nil
	case KindPercentage:
		if err := checkThreshold(threshold); err != nil {
			return nil, err
		}
		return Percentage{Threshold: threshold}, nil
	case KindPoints:
		if err := checkThreshold(threshold); err != nil {
			return nil, err
		}
		return Points{Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported rule %s", ErrInvalidRule, kind)
	}
}

// Threshold 返回规则的完成阈值，ALL 规则固定为 100
func Threshold(r Rule) int {
	switch v := r.(type) {
	case Percentage:
		return v.Threshold
	case Points:
		return v.Threshold
	default:
		return MaxThreshold
	}
}

func checkThreshold(threshold int) error {
	if threshold < MinThreshold || threshold > MaxThreshold {
		return fmt.Errorf("%w: threshold %d outside [%d,%d]", ErrInvalidRule, threshold, MinThreshold, MaxThreshold)
	}
	return nil
}
