package model

import "fmt"

// Candidate is one entry of an ordered fallback list.
type Candidate struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

func (c Candidate) String() string { return fmt.Sprintf("%s/%s", c.Provider, c.Model) }
