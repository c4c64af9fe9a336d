// Package htmlmail turns rich-text-editor output into HTML that renders
// consistently in email clients: editor marker classes become inline styles,
// block elements get baseline spacing, and embedded base64 images become
// cid-referenced attachment parts.
package htmlmail

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	bodyPolicy *bluemonday.Policy
	policyOnce sync.Once
)

func initPolicy() {
	policyOnce.Do(func() {
		// UGC baseline strips scripts and event handlers. Inline styles,
		// editor classes and data-URI images must survive sanitizing so the
		// transform and image extraction can still see them.
		bodyPolicy = bluemonday.UGCPolicy()
		bodyPolicy.AllowElements("span", "div", "u")
		bodyPolicy.AllowAttrs("style", "class").Globally()
		bodyPolicy.AllowDataURIImages()
	})
}

// Quill marker classes mapped to pixel sizes.
var sizeClasses = []struct{ class, size string }{
	{"ql-size-small", "12px"},
	{"ql-size-large", "20px"},
	{"ql-size-huge", "28px"},
}

var headingSizes = []struct{ tag, size string }{
	{"h1", "32px"},
	{"h2", "26px"},
	{"h3", "22px"},
}

var alignClasses = []struct{ class, align string }{
	{"ql-align-center", "center"},
	{"ql-align-right", "right"},
	{"ql-align-justify", "justify"},
}

var fontClasses = []struct{ class, family string }{
	{"ql-font-serif", "serif"},
	{"ql-font-monospace", "monospace"},
}

const defaultParagraphSize = "16px"

// Normalize sanitizes the body and rewrites editor markup into inline-styled,
// email-client-safe HTML. It is a pure text transform, called once per
// rendered row.
func Normalize(html string) (string, error) {
	if html == "" {
		return "", nil
	}
	initPolicy()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyPolicy.Sanitize(html)))
	if err != nil {
		return "", err
	}

	for _, sc := range sizeClasses {
		doc.Find("." + sc.class).Each(func(_ int, el *goquery.Selection) {
			appendStyle(el, "font-size: "+sc.size+" !important;")
			el.RemoveClass(sc.class)
		})
	}

	for _, hs := range headingSizes {
		doc.Find(hs.tag).Each(func(_ int, el *goquery.Selection) {
			if !hasStyle(el, "font-size:") {
				appendStyle(el, "font-size: "+hs.size+" !important; margin: 0.5em 0;")
			}
		})
	}

	doc.Find("p, span").Each(func(_ int, el *goquery.Selection) {
		if !hasStyle(el, "font-size:") {
			appendStyle(el, "font-size: "+defaultParagraphSize+";")
		}
		if goquery.NodeName(el) == "p" && !hasStyle(el, "margin:") {
			appendStyle(el, "margin: 10px 0;")
		}
	})

	doc.Find("p, li, div").Each(func(_ int, el *goquery.Selection) {
		if !hasStyle(el, "line-height:") {
			appendStyle(el, "line-height: 1.6;")
		}
	})

	for _, ac := range alignClasses {
		doc.Find("." + ac.class).Each(func(_ int, el *goquery.Selection) {
			appendStyle(el, "text-align: "+ac.align+" !important;")
			el.RemoveClass(ac.class)
		})
	}
	// Left alignment is the default; the marker class just goes away.
	doc.Find(".ql-align-left").RemoveClass("ql-align-left")

	for _, fc := range fontClasses {
		doc.Find("." + fc.class).Each(func(_ int, el *goquery.Selection) {
			appendStyle(el, "font-family: "+fc.family+" !important;")
			el.RemoveClass(fc.class)
		})
	}
	doc.Find(".ql-font-sans-serif").RemoveClass("ql-font-sans-serif")

	return doc.Find("body").Html()
}

func appendStyle(el *goquery.Selection, css string) {
	current, _ := el.Attr("style")
	el.SetAttr("style", current+css)
}

func hasStyle(el *goquery.Selection, prop string) bool {
	current, _ := el.Attr("style")
	return strings.Contains(current, prop)
}
