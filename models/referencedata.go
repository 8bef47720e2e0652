package models

import (
	"sort"
	"strings"
)

// PayCodeSet is an immutable snapshot of pay code identifiers.
type PayCodeSet struct {
	codes map[string]struct{}
}

func NewPayCodeSet(codes ...string) PayCodeSet {
	s := PayCodeSet{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c != "" {
			s.codes[c] = struct{}{}
		}
	}

	return s
}

func (s PayCodeSet) Contains(code string) bool {
	_, found := s.codes[code]
	return found
}

func (s PayCodeSet) Len() int {
	return len(s.codes)
}

func (s PayCodeSet) Codes() []string {
	out := make([]string, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type EmployeeUnion struct {
	EmployeeID string `json:"employeeId" csv:"employee_id"`
	UnionCode  string `json:"unionCode" csv:"union_code"`
}

// UnionCodeMap maps employee id to union code as of the export timestamp. It is built
// once per run and never mutated afterwards.
type UnionCodeMap struct {
	codes map[string]string
}

func NewUnionCodeMap(employees []EmployeeUnion) *UnionCodeMap {
	m := &UnionCodeMap{codes: make(map[string]string, len(employees))}
	for _, e := range employees {
		m.codes[e.EmployeeID] = e.UnionCode
	}

	return m
}

// HasUnion is false for employees that are absent or mapped to a blank code.
func (m *UnionCodeMap) HasUnion(employeeID string) bool {
	return strings.TrimSpace(m.codes[employeeID]) != ""
}

func (m *UnionCodeMap) Len() int {
	return len(m.codes)
}
