package main

import (
	"encoding/json"

	"github.com/autobib/autobib/provider"
	"github.com/autobib/autobib/record"
	"github.com/autobib/autobib/replaycache"
)

// cachedFetch is the JSON shape stored in a replaycache entry's Body for a
// provider fetch result.
type cachedFetch struct {
	Status int         `json:"status"`
	Data   record.Data `json:"data,omitempty"`
}

func encodeCachedFetch(r provider.FetchResult) (replaycache.Entry, error) {
	body, err := json.Marshal(cachedFetch{Status: int(r.Status), Data: r.Data})
	if err != nil {
		return replaycache.Entry{}, err
	}
	return replaycache.Entry{StatusCode: 200, Body: body}, nil
}

func decodeCachedFetch(e replaycache.Entry) (provider.FetchResult, error) {
	var c cachedFetch
	if err := json.Unmarshal(e.Body, &c); err != nil {
		return provider.FetchResult{}, err
	}
	return provider.FetchResult{Status: provider.FetchStatus(c.Status), Data: c.Data}, nil
}
