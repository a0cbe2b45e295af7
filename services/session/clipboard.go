package session

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/bromato/bromato/locator"
	"github.com/h2non/filetype"
	imgclip "golang.design/x/clipboard"
)

// Clipboard 系统剪贴板的写入能力
type Clipboard interface {
	WriteText(text string) error
	WriteImage(png []byte) error
}

// systemClipboard 文本走 atotto/clipboard，图片走 golang.design/x/clipboard
type systemClipboard struct {
	initOnce sync.Once
	initErr  error
}

func (c *systemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}

func (c *systemClipboard) WriteImage(data []byte) error {
	c.initOnce.Do(func() {
		c.initErr = imgclip.Init()
	})
	if c.initErr != nil {
		return fmt.Errorf("init image clipboard: %w", c.initErr)
	}
	imgclip.Write(imgclip.FmtImage, data)
	return nil
}

// pasteboard 所有会话共享同一个系统剪贴板，写入和按下粘贴键必须成对完成
type pasteboard struct {
	mu   sync.Mutex
	clip Clipboard
}

// decodeImage 把 base64 图片解码为剪贴板接受的 PNG，其他可识别的格式会被转码
func decodeImage(content string) ([]byte, error) {
	data, err := locator.DecodeContent(content)
	if err != nil {
		return nil, fmt.Errorf("%w: content is not valid base64: %v", ErrInvalidPaste, err)
	}
	if filetype.Is(data, "png") {
		return data, nil
	}
	if !filetype.IsImage(data) {
		return nil, fmt.Errorf("%w: content is not an image", ErrInvalidPaste)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode image: %v", ErrInvalidPaste, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("convert %s to png: %w", format, err)
	}
	return buf.Bytes(), nil
}
