package mail

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/telekom/smtp-notifier/pkg/mailerr"
	"github.com/telekom/smtp-notifier/pkg/notification"
	"github.com/telekom/smtp-notifier/pkg/version"
)

// ImageContentID is the Content-ID the rendered HTML refers to as cid:image.
const ImageContentID = "image"

// SampleImage is a 1x1 PNG used by test runs.
const SampleImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

const defaultImageFetchTimeout = 10 * time.Second

var dataURIPattern = regexp.MustCompile(`(?i)^data:image/([a-z0-9.+-]*);base64,(\S*)$`)

// ImageSourceKind is the classification of an image value.
type ImageSourceKind int

const (
	ImageNone ImageSourceKind = iota
	ImageDataURI
	ImageURL
	ImageFile
	ImageRaw
)

func (k ImageSourceKind) String() string {
	switch k {
	case ImageDataURI:
		return "data-uri"
	case ImageURL:
		return "url"
	case ImageFile:
		return "file"
	case ImageRaw:
		return "raw"
	default:
		return "none"
	}
}

// ImageSource is a classified image value.
type ImageSource struct {
	Kind ImageSourceKind
	// Ref is the URL, the file path or the base64 payload of a data URI.
	Ref string
	// Subtype is the image subtype declared by a data URI.
	Subtype string
	Data    []byte
}

// ClassifyImage decides how an image value is acquired. The order is fixed:
// data URI, http(s) URL, existing local file, raw bytes. A reference matching
// none of them is unrecognized. An empty image classifies as ImageNone.
func ClassifyImage(img notification.Image) (ImageSource, error) {
	if img.Empty() {
		return ImageSource{Kind: ImageNone}, nil
	}
	if ref := strings.TrimSpace(img.Ref); ref != "" {
		if m := dataURIPattern.FindStringSubmatch(ref); m != nil {
			return ImageSource{Kind: ImageDataURI, Subtype: strings.ToLower(m[1]), Ref: m[2]}, nil
		}
		if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return ImageSource{Kind: ImageURL, Ref: ref}, nil
		}
		if info, err := os.Stat(ref); err == nil && !info.IsDir() {
			return ImageSource{Kind: ImageFile, Ref: ref}, nil
		}
	}
	if len(img.Data) > 0 {
		return ImageSource{Kind: ImageRaw, Data: img.Data}, nil
	}
	return ImageSource{}, mailerr.Newf(mailerr.ErrImageAcquisition, mailerr.ReasonImageUnrecognized, nil,
		"unrecognized image input %q", truncate(img.Ref, 64))
}

// ImageData is an acquired image ready to embed.
type ImageData struct {
	Bytes       []byte
	ContentType string
}

// ImageLoader acquires classified images.
type ImageLoader struct {
	client *resty.Client
}

// NewImageLoader returns a loader whose HTTP fetches are bounded by timeout.
func NewImageLoader(timeout time.Duration) *ImageLoader {
	if timeout <= 0 {
		timeout = defaultImageFetchTimeout
	}
	return &ImageLoader{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "image/*").
			SetHeader("User-Agent", version.UserAgent()),
	}
}

// Load acquires the bytes of src. Every failure is an image acquisition error.
func (l *ImageLoader) Load(ctx context.Context, src ImageSource) (ImageData, error) {
	switch src.Kind {
	case ImageDataURI:
		b, err := base64.StdEncoding.DecodeString(src.Ref)
		if err != nil {
			return ImageData{}, mailerr.New(mailerr.ErrImageAcquisition, mailerr.ReasonImageDecode,
				"image data URI is not valid base64", err)
		}
		if len(b) == 0 {
			return ImageData{}, mailerr.New(mailerr.ErrImageAcquisition, mailerr.ReasonImageDecode,
				"image data URI carries no data", nil)
		}
		ct := http.DetectContentType(b)
		if src.Subtype != "" {
			ct = "image/" + src.Subtype
		}
		return ImageData{Bytes: b, ContentType: ct}, nil
	case ImageURL:
		resp, err := l.client.R().SetContext(ctx).Get(src.Ref)
		if err != nil {
			return ImageData{}, mailerr.Newf(mailerr.ErrImageAcquisition, mailerr.ReasonImageNetwork, err,
				"failed to fetch image %s", src.Ref)
		}
		if resp.StatusCode() != http.StatusOK {
			return ImageData{}, mailerr.Newf(mailerr.ErrImageAcquisition, mailerr.ReasonImageNetwork, nil,
				"fetching image %s returned status %d", src.Ref, resp.StatusCode())
		}
		b := resp.Body()
		ct := resp.Header().Get("Content-Type")
		if !strings.HasPrefix(ct, "image/") {
			ct = http.DetectContentType(b)
		}
		return ImageData{Bytes: b, ContentType: ct}, nil
	case ImageFile:
		b, err := os.ReadFile(src.Ref)
		if err != nil {
			return ImageData{}, mailerr.Newf(mailerr.ErrImageAcquisition, mailerr.ReasonImageFile, err,
				"failed to read image file %s", src.Ref)
		}
		return ImageData{Bytes: b, ContentType: http.DetectContentType(b)}, nil
	case ImageRaw:
		return ImageData{Bytes: src.Data, ContentType: http.DetectContentType(src.Data)}, nil
	default:
		return ImageData{}, mailerr.New(mailerr.ErrImageAcquisition, mailerr.ReasonImageUnrecognized,
			"no image to load", nil)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
