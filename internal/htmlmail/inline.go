package htmlmail

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"SheetSend/internal/models"
)

// ExtractInlineImages finds every <img> whose src is a base64 image data URI,
// swaps the data URI for a cid: reference and returns the extracted parts in
// document order. Content ids are derived from job id, 0-based row index and
// a per-row counter starting at 1, so they never collide across rows or jobs.
// Images with any other src are left untouched.
func ExtractInlineImages(html, jobID string, rowIndex int) (string, []models.InlineAttachment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, err
	}

	var parts []models.InlineAttachment
	counter := 0
	doc.Find("img").Each(func(_ int, el *goquery.Selection) {
		src, ok := el.Attr("src")
		if !ok {
			return
		}
		contentType, payload, ok := parseImageDataURI(src)
		if !ok {
			return
		}
		counter++
		cid := fmt.Sprintf("emb_%s_%d_%d", jobID, rowIndex, counter)
		parts = append(parts, models.InlineAttachment{
			ContentID:   cid,
			ContentType: contentType,
			Base64:      payload,
		})
		el.SetAttr("src", "cid:"+cid)
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return "", nil, err
	}
	return out, parts, nil
}

// parseImageDataURI splits a data:image/...;base64,... URI into its declared
// MIME type and raw base64 payload. Parameters between the MIME type and the
// base64 marker (charset, name) are ignored.
func parseImageDataURI(src string) (contentType, payload string, ok bool) {
	meta, data, found := strings.Cut(src, ",")
	if !found {
		return "", "", false
	}
	meta, hasPrefix := strings.CutPrefix(meta, "data:")
	if !hasPrefix || !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	contentType, _, _ = strings.Cut(strings.TrimSuffix(meta, ";base64"), ";")
	if !strings.HasPrefix(contentType, "image/") {
		return "", "", false
	}
	return contentType, data, true
}
