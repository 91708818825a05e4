package common

import (
	"net/url"
	"strings"
)

// RetrievalPath is the route that resolves a record id to its published binary.
const RetrievalPath = "/retrieve"

// RetrievalURL returns the address encoded into a retrieval code for the given record.
func RetrievalURL(origin, id string) string {
	return strings.TrimRight(origin, "/") + RetrievalPath + "?id=" + url.QueryEscape(id)
}
