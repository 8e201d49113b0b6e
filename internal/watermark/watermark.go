// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package watermark computes the forensic overlay drawn over a lesson video.
// The overlay is a pure function of (userID, sessionID): the same viewer and
// session always get the same marks, so a leaked recording can be traced
// without storing anything.
package watermark

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

const (
	DefaultColumns    = 6
	DefaultRows       = 4
	DefaultWindowSize = 6
	DefaultBrand      = "Escola Habilidade"
	tokenLength       = 16
	centerLength      = 8
)

// Position anchors a label on the video surface.
type Position string

const (
	TopRight   Position = "top-right"
	BottomLeft Position = "bottom-left"
	Center     Position = "center"
)

// Label is a single piece of overlay text.
type Label struct {
	Text        string   `json:"text"`
	Position    Position `json:"position"`
	Opacity     float64  `json:"opacity"`
	RotationDeg float64  `json:"rotationDeg"`
}

// Tile is one cell of the micro-watermark grid.
type Tile struct {
	Row         int     `json:"row"`
	Col         int     `json:"col"`
	Text        string  `json:"text"`
	Opacity     float64 `json:"opacity"`
	RotationDeg float64 `json:"rotationDeg"`
}

// Overlay is everything a host needs to draw the watermark.
type Overlay struct {
	Token   string  `json:"-"`
	Corners []Label `json:"corners"`
	Center  Label   `json:"center"`
	Columns int     `json:"columns"`
	Rows    int     `json:"rows"`
	Tiles   []Tile  `json:"tiles"`
}

// Options tune the layout. Zero values take the defaults.
type Options struct {
	Brand      string
	Columns    int
	Rows       int
	WindowSize int
}

func (o Options) withDefaults() Options {
	if o.Brand == "" {
		o.Brand = DefaultBrand
	}
	if o.Columns <= 0 {
		o.Columns = DefaultColumns
	}
	if o.Rows <= 0 {
		o.Rows = DefaultRows
	}
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	return o
}

// Token derives the session watermark token.
func Token(userID, sessionID string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + sessionID))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:tokenLength]
}

// Render builds the overlay for one viewer session.
func Render(userID, sessionID string, opts Options) Overlay {
	opts = opts.withDefaults()
	token := Token(userID, sessionID)

	ov := Overlay{
		Token: token,
		Corners: []Label{
			{Text: token, Position: TopRight, Opacity: 0.3},
			{Text: opts.Brand, Position: BottomLeft, Opacity: 0.2},
		},
		Center: Label{
			Text:        centerText(userID),
			Position:    Center,
			Opacity:     0.1,
			RotationDeg: 45,
		},
		Columns: opts.Columns,
		Rows:    opts.Rows,
		Tiles:   make([]Tile, 0, opts.Columns*opts.Rows),
	}

	for i := 0; i < opts.Columns*opts.Rows; i++ {
		rot, opacity := tileStyle(token, i)
		ov.Tiles = append(ov.Tiles, Tile{
			Row:         i / opts.Columns,
			Col:         i % opts.Columns,
			Text:        window(token, i, opts.WindowSize),
			Opacity:     opacity,
			RotationDeg: rot,
		})
	}
	return ov
}

// centerText is the first eight characters of the upper-cased user id.
func centerText(userID string) string {
	up := strings.ToUpper(userID)
	if utf8.RuneCountInString(up) <= centerLength {
		return up
	}
	return string([]rune(up)[:centerLength])
}

// window returns size characters of token starting at i mod len, wrapping.
func window(token string, i, size int) string {
	if token == "" {
		return ""
	}
	var b strings.Builder
	start := i % len(token)
	for k := 0; k < size; k++ {
		b.WriteByte(token[(start+k)%len(token)])
	}
	return b.String()
}

// tileStyle maps (token, index) to a rotation in [0,360) and an opacity in
// [0.1, 0.4].
func tileStyle(token string, i int) (rotation, opacity float64) {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(i))
	sum := sha256.Sum256(append([]byte(token), idx[:]...))
	rotation = float64(binary.BigEndian.Uint16(sum[0:2]) % 360)
	opacity = 0.1 + 0.3*float64(sum[2])/255
	return rotation, opacity
}
