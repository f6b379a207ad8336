package epmc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// Fulltext is the parsed part of a JATS article that compliance checks read.
type Fulltext struct {
	ArticleIDs []ArticleID
	Licences   []License
}

// ArticleID is one front/article-meta/article-id element.
type ArticleID struct {
	Type  string `xml:"pub-id-type,attr"`
	Value string `xml:",chardata"`
}

// License is one permissions/license element.
type License struct {
	Type       string     `xml:"license-type,attr"`
	Href       string     `xml:"href,attr"`
	Paragraphs []licenseP `xml:"license-p"`
}

type licenseP struct {
	Inner    string    `xml:",innerxml"`
	ExtLinks []extLink `xml:"ext-link"`
}

type extLink struct {
	Href string `xml:"href,attr"`
}

type jatsArticle struct {
	XMLName    xml.Name    `xml:"article"`
	ArticleIDs []ArticleID `xml:"front>article-meta>article-id"`
	Licences   []License   `xml:"front>article-meta>permissions>license"`
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// ParseFulltext parses JATS XML. Entities the decoder does not know, such as
// those declared by the JATS DTD, are passed through rather than rejected.
func ParseFulltext(data []byte) (*Fulltext, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var article jatsArticle
	if err := dec.Decode(&article); err != nil {
		return nil, fmt.Errorf("failed to parse fulltext XML: %w", err)
	}

	return &Fulltext{
		ArticleIDs: article.ArticleIDs,
		Licences:   article.Licences,
	}, nil
}

// IsAAM reports whether the article carries a manuscript id, which EPMC
// assigns only to accepted author manuscripts.
func (f *Fulltext) IsAAM() bool {
	for _, id := range f.ArticleIDs {
		if id.Type == "manuscript" {
			return true
		}
	}
	return false
}

// LicenceDetails returns the first licence's type code, URL and paragraph
// text. The URL comes from the licence element itself, falling back to the
// first ext-link inside the paragraph. All three are empty when the article
// has no licence element.
func (f *Fulltext) LicenceDetails() (code, url, paragraph string) {
	if len(f.Licences) == 0 {
		return "", "", ""
	}
	lic := f.Licences[0]

	code = strings.TrimSpace(lic.Type)
	url = strings.TrimSpace(lic.Href)

	texts := make([]string, 0, len(lic.Paragraphs))
	for _, p := range lic.Paragraphs {
		if url == "" {
			for _, link := range p.ExtLinks {
				if href := strings.TrimSpace(link.Href); href != "" {
					url = href
					break
				}
			}
		}
		if text := plainText(p.Inner); text != "" {
			texts = append(texts, text)
		}
	}

	return code, url, strings.Join(texts, " ")
}

func plainText(inner string) string {
	text := tagPattern.ReplaceAllString(inner, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}
