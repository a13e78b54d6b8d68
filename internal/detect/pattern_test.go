package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var phone = Screen{Width: 1080, Height: 2400}

// reelTree is a full-screen vertical pager holding one portrait video.
func reelTree() *Node {
	return &Node{
		ClassName: "android.widget.FrameLayout",
		Bounds:    Bounds{Right: 1080, Bottom: 2400},
		Children: []Node{
			{
				ClassName:  "androidx.viewpager2.widget.ViewPager2",
				Scrollable: true,
				Bounds:     Bounds{Right: 1080, Bottom: 2400},
				Children: []Node{
					{ClassName: "android.view.TextureView", Bounds: Bounds{Top: 120, Right: 1080, Bottom: 2220}},
				},
			},
		},
	}
}

// feedTree is a scrolling feed of landscape cards above a bottom bar.
func feedTree() *Node {
	return &Node{
		ClassName: "android.widget.FrameLayout",
		Bounds:    Bounds{Right: 1080, Bottom: 1600},
		Children: []Node{
			{
				ClassName:  "androidx.recyclerview.widget.RecyclerView",
				Scrollable: true,
				Bounds:     Bounds{Top: 200, Right: 1080, Bottom: 1400},
			},
		},
	}
}

func TestPatternMatcher_Analyze(t *testing.T) {
	m := NewPatternMatcher(phone)

	tests := []struct {
		name         string
		root         *Node
		pkg          string
		wantConf     float64
		wantEngaged  bool
		wantPatterns []string
	}{
		{
			name:         "instagram reels",
			root:         reelTree(),
			pkg:          "com.instagram.android",
			wantConf:     1.0,
			wantEngaged:  true,
			wantPatterns: []string{PatternFullScreenScroll, PatternPortraitVideo, PatternVerticalSwipe},
		},
		{
			name:         "tiktok feed of cards",
			root:         feedTree(),
			pkg:          "com.zhiliaoapp.musically",
			wantConf:     0.2,
			wantPatterns: []string{PatternVerticalSwipe},
		},
		{
			name: "youtube shorts",
			root: &Node{
				ViewID:     "com.google.android.youtube:id/reel_recycler",
				Scrollable: true,
				Bounds:     Bounds{Right: 2000, Bottom: 2400},
				Children:   []Node{{ContentDescription: "Shorts", Bounds: Bounds{Right: 100, Bottom: 100}}},
			},
			pkg:          "com.google.android.youtube",
			wantConf:     0.8,
			wantEngaged:  true,
			wantPatterns: []string{PatternShortsKeyword, PatternFullScreenScroll},
		},
		{
			name:         "unknown app",
			root:         feedTree(),
			pkg:          "com.reddit.frontpage",
			wantConf:     0.5,
			wantPatterns: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := m.Analyze(tt.root, tt.pkg)
			assert.InDelta(t, tt.wantConf, a.Confidence, 1e-9)
			assert.Equal(t, tt.wantEngaged, a.Engaged())
			assert.Equal(t, tt.wantPatterns, a.Patterns)
		})
	}
}

func TestPatternMatcher_ChildScanLimit(t *testing.T) {
	m := NewPatternMatcher(phone)

	root := &Node{Bounds: Bounds{Right: 1080, Bottom: 200}}
	for i := 0; i < maxChildrenScanned; i++ {
		root.Children = append(root.Children, Node{Bounds: Bounds{Right: 10, Bottom: 10}})
	}
	root.Children = append(root.Children, Node{Text: "shorts"})

	a := m.Analyze(root, "com.google.android.youtube")
	assert.NotContains(t, a.Patterns, PatternShortsKeyword)
}

func TestSignalBoard_PublishTree(t *testing.T) {
	board := NewSignalBoard()
	_, ok := board.Latest()
	assert.False(t, ok)

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r, a := board.PublishTree(NewPatternMatcher(phone), reelTree(), "com.instagram.android", at)
	assert.True(t, r.Engaged)
	assert.Equal(t, MethodPattern, r.Method)
	assert.Len(t, a.Patterns, 3)

	latest, ok := board.Latest()
	assert.True(t, ok)
	assert.Equal(t, r, latest)
}
