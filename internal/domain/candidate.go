package domain

import (
	"fmt"
	"strings"
)

const (
	NoTitle = "No Title"
	NoLink  = "No Link"
)

const gibibyte = 1024 * 1024 * 1024

// IndexerID names one configured Jackett indexer.
type IndexerID string

type Candidate struct {
	Title     string    `json:"title"`
	Indexer   IndexerID `json:"indexer"`
	Seeders   int       `json:"seeders"`
	SizeBytes uint64    `json:"sizeBytes"`
	Link      string    `json:"link"`
}

// NewCandidate builds a candidate from raw upstream fields, annotating the title
// with its indexer and applying the placeholder and zero defaults.
func NewCandidate(indexer IndexerID, title, link string, seeders int, sizeBytes uint64) Candidate {
	title = strings.TrimSpace(title)
	if title == "" {
		title = NoTitle
	}
	link = strings.TrimSpace(link)
	if link == "" {
		link = NoLink
	}
	if seeders < 0 {
		seeders = 0
	}
	return Candidate{
		Title:     fmt.Sprintf("%s [%s]", title, indexer),
		Indexer:   indexer,
		Seeders:   seeders,
		SizeBytes: sizeBytes,
		Link:      link,
	}
}

// SizeDisplay renders SizeBytes in gibibytes with two decimals.
func (c Candidate) SizeDisplay() string {
	return FormatSize(c.SizeBytes)
}

func FormatSize(sizeBytes uint64) string {
	return fmt.Sprintf("%.2f GB", float64(sizeBytes)/gibibyte)
}

// AggregateResult is ordered by seeders descending, ties broken by link.
type AggregateResult []Candidate

