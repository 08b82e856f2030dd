package posts

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/davenfroberg/gpta-backend/internal/clients/sendgrid"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/textproc"
)

// Announcement is the payload the fan-out renders into email.
type Announcement struct {
	CourseID   string
	CourseName string
	PostID     string
	PostNum    int
	Subject    string
	HTML       string
}

const announcementTextLimit = 500

var (
	imgTagRe    = regexp.MustCompile(`(?i)<img[^>]*>`)
	imgSrcRe    = regexp.MustCompile(`(?i)src=["']([^"']+)["']`)
	iframeRe    = regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`)
	redirectRe  = regexp.MustCompile(`(?i)^https?://piazza\.com/redirect/s3\b`)
	imagePlace  = `<span style="color: #666; font-style: italic;">[Image - view on Piazza]</span>`
	iframePlace = `<span style="color: #666; font-style: italic;">[Embedded content - view on Piazza]</span>`
)

// AnnouncementMailer renders and sends announcement email through SendGrid.
type AnnouncementMailer struct {
	log       *logger.Logger
	sg        sendgrid.Client
	recipient string
}

func NewAnnouncementMailer(log *logger.Logger, sg sendgrid.Client) (*AnnouncementMailer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sg == nil {
		return nil, fmt.Errorf("sendgrid client required")
	}
	recipient := envutil.Str("NOTIFY_DEFAULT_EMAIL", "")
	if recipient == "" {
		return nil, fmt.Errorf("missing NOTIFY_DEFAULT_EMAIL")
	}
	return &AnnouncementMailer{
		log:       log.With("service", "AnnouncementMailer"),
		sg:        sg,
		recipient: recipient,
	}, nil
}

func (m *AnnouncementMailer) SendAnnouncement(ctx context.Context, a Announcement) error {
	subject := fmt.Sprintf("Piazza announcement @%d for %s", a.PostNum, a.CourseName)
	_, err := m.sg.Send(ctx, sendgrid.SendEmailRequest{
		From:    sendgrid.EmailAddress{Name: a.CourseName + " on GP-TA"},
		To:      []sendgrid.EmailAddress{{Email: m.recipient}},
		Subject: subject,
		Text:    announcementText(a),
		HTML:    announcementHTML(a),
	})
	return err
}

func postURL(courseID, postID string) string {
	return fmt.Sprintf("https://piazza.com/class/%s/post/%s", courseID, postID)
}

func hasImages(content string) bool {
	return imgTagRe.MatchString(content)
}

// rewriteImageSrc converts a forum redirect URL into the direct CDN URL so
// mail clients can load it. Unrewritable sources return "".
func rewriteImageSrc(src string) string {
	if !redirectRe.MatchString(src) {
		return ""
	}
	u, err := url.Parse(html.UnescapeString(src))
	if err != nil {
		return ""
	}
	q := u.Query()
	bucket := q.Get("bucket")
	prefix := q.Get("prefix")
	if bucket == "" || prefix == "" {
		return ""
	}
	return "https://" + bucket + ".s3.amazonaws.com/" + prefix
}

// sanitizeHTML unescapes entities, rewrites redirect images to direct URLs
// where possible, and replaces everything a mail client cannot render.
func sanitizeHTML(content string) string {
	content = html.UnescapeString(content)

	content = imgTagRe.ReplaceAllStringFunc(content, func(tag string) string {
		srcMatch := imgSrcRe.FindStringSubmatch(tag)
		if srcMatch != nil {
			if direct := rewriteImageSrc(srcMatch[1]); direct != "" {
				return imgSrcRe.ReplaceAllString(tag, `src="`+direct+`"`)
			}
		}
		return imagePlace
	})

	return iframeRe.ReplaceAllString(content, iframePlace)
}

// truncateAtWord cuts s to at most limit characters, backing up to the last
// word boundary, and appends an ellipsis.
func truncateAtWord(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func announcementText(a Announcement) string {
	plain := textproc.Clean(html.UnescapeString(a.HTML))
	plain = strings.Join(strings.Fields(plain), " ")
	plain = truncateAtWord(plain, announcementTextLimit)

	imageNotice := ""
	if hasImages(a.HTML) {
		imageNotice = "\n\n[This announcement contains images. View on Piazza to see all media.]\n"
	}

	return fmt.Sprintf(
		"Hello,\n\n"+
			"A new course announcement has been posted in %s.\n\n"+
			"Subject: %s\n\n"+
			"%s\n"+
			"%s\n"+
			"View the full announcement here: %s\n\n"+
			"Happy learning!\n"+
			"- The GP-TA Team",
		a.CourseName,
		html.UnescapeString(a.Subject),
		plain,
		imageNotice,
		postURL(a.CourseID, a.PostID),
	)
}

func announcementHTML(a Announcement) string {
	link := postURL(a.CourseID, a.PostID)

	imageNotice := ""
	if hasImages(a.HTML) {
		imageNotice = fmt.Sprintf(
			`<div style="background-color: #fff3cd; border-left: 4px solid #ffc107; padding: 12px; margin: 15px 0; font-size: 14px;">`+
				`This announcement contains images. <a href="%s">View on Piazza</a> to see all media.</div>`,
			link,
		)
	}

	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333333; max-width: 800px; margin: 0 auto; padding: 20px;">
  <p>Hello,</p>
  <p>A new announcement has been posted in <strong>%s</strong>:</p>
  <div style="background-color: #ffffff; padding: 20px; border-left: 4px solid #1a73e8; margin: 20px 0;">
    <h3 style="margin-top: 0;">%s</h3>
    %s
  </div>
  %s
  <a href="%s" style="display: inline-block; background-color: #1a73e8; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; margin-top: 20px;">View Full Announcement on Piazza</a>
  <p style="margin-top: 30px;">Happy learning!<br>- The GP-TA Team</p>
</body>
</html>`,
		html.EscapeString(a.CourseName),
		html.EscapeString(html.UnescapeString(a.Subject)),
		sanitizeHTML(a.HTML),
		imageNotice,
		link,
	)
}
