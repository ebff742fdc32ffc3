// Package serializer renders catalog entities as versioned JSON representations.
//
// Two groups exist. The books group renders a book with a summary of its
// author; the authors group renders an author with summaries of its books and
// its links. Callers allowed to write the catalog also get the update and
// delete links. Fields introduced in later API versions are left out when the
// negotiated version predates them.
package serializer

import (
	"encoding/json"
	"strconv"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/version"
)

// CommentSince is the first API version exposing the book comment.
const CommentSince = "2.0"

// AuthorsPath is the collection path used to build author self links.
const AuthorsPath = "/api/authors"

type link struct {
	Href string `json:"href"`
}

// authorLinks are the author's relations. Update and delete are only
// rendered for admins.
type authorLinks struct {
	Self   link  `json:"self"`
	Update *link `json:"update,omitempty"`
	Delete *link `json:"delete,omitempty"`
}

type authorSummary struct {
	ID        int64  `json:"id"`
	LastName  string `json:"lastName"`
	FirstName string `json:"firstName,omitempty"`
}

type bookSummary struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	CoverText string  `json:"coverText,omitempty"`
	Comment   *string `json:"comment,omitempty"`
}

type bookView struct {
	bookSummary
	Author *authorSummary `json:"author"`
}

type authorView struct {
	authorSummary
	Books []bookSummary `json:"books"`
	Links authorLinks   `json:"_links"`
}

// Books renders books in the books group.
func Books(books []*catalog.Book, v string) ([]byte, error) {
	out := make([]bookView, len(books))
	for i, b := range books {
		out[i] = newBookView(b, v)
	}
	return json.Marshal(out)
}

// Book renders one book in the books group.
func Book(b *catalog.Book, v string) ([]byte, error) {
	return json.Marshal(newBookView(b, v))
}

// Authors renders authors in the authors group. admin adds the write links.
func Authors(authors []*catalog.Author, v string, admin bool) ([]byte, error) {
	out := make([]authorView, len(authors))
	for i, a := range authors {
		out[i] = newAuthorView(a, v, admin)
	}
	return json.Marshal(out)
}

// Author renders one author in the authors group.
func Author(a *catalog.Author, v string, admin bool) ([]byte, error) {
	return json.Marshal(newAuthorView(a, v, admin))
}

// SelfLink returns the canonical URL path of an author.
func SelfLink(id int64) string {
	return AuthorsPath + "/" + strconv.FormatInt(id, 10)
}

func newBookSummary(b *catalog.Book, v string) bookSummary {
	s := bookSummary{ID: b.ID, Title: b.Title, CoverText: b.CoverText}
	if version.Since(v, CommentSince) {
		c := b.Comment
		s.Comment = &c
	}
	return s
}

func newBookView(b *catalog.Book, v string) bookView {
	bv := bookView{bookSummary: newBookSummary(b, v)}
	if b.Author != nil {
		bv.Author = &authorSummary{ID: b.Author.ID, LastName: b.Author.LastName, FirstName: b.Author.FirstName}
	}
	return bv
}

func newAuthorView(a *catalog.Author, v string, admin bool) authorView {
	self := SelfLink(a.ID)
	av := authorView{
		authorSummary: authorSummary{ID: a.ID, LastName: a.LastName, FirstName: a.FirstName},
		Books:         make([]bookSummary, len(a.Books)),
		Links:         authorLinks{Self: link{Href: self}},
	}
	if admin {
		av.Links.Update = &link{Href: self}
		av.Links.Delete = &link{Href: self}
	}
	for i, b := range a.Books {
		av.Books[i] = newBookSummary(b, v)
	}
	return av
}
