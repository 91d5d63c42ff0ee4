// Package dblp provides a publication source backed by the DBLP search API.
//
// DBLP indexes computer-science venues and is the primary bibliography for ISERN members.
// The client resolves a member to the name spellings DBLP knows, then lists every
// publication under each spelling.
//
// API Documentation: https://dblp.org/faq/How+to+use+the+dblp+search+API.html
package dblp

import "encoding/xml"

// Result is the root element of a DBLP search response.
type Result struct {
	XMLName xml.Name `xml:"result"`
	Hits    Hits     `xml:"hits"`
}

// Hits wraps the list of hits and the pagination counters.
type Hits struct {
	Total int   `xml:"total,attr"`
	Sent  int   `xml:"sent,attr"`
	First int   `xml:"first,attr"`
	Hit   []Hit `xml:"hit"`
}

// Hit is one search result.
type Hit struct {
	ID   string `xml:"id,attr"`
	Info Info   `xml:"info"`
}

// Info holds a hit's payload. Publication searches fill the publication fields; author
// searches fill Author and Aliases.
type Info struct {
	Authors []Author `xml:"authors>author"`
	Title   string   `xml:"title"`
	Venue   string   `xml:"venue"`
	Year    int      `xml:"year"`
	Type    string   `xml:"type"`
	Key     string   `xml:"key"`
	DOI     string   `xml:"doi"`
	URL     string   `xml:"url"`

	Author  string   `xml:"author"`
	Aliases []string `xml:"aliases>alias"`
}

// Author is an author element with its DBLP person id.
type Author struct {
	PID  string `xml:"pid,attr"`
	Name string `xml:",chardata"`
}
