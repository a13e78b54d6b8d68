package detect

import (
	"strings"
)

const (
	fullScreenThreshold = 0.75 // fraction of screen height
	portraitRatioMin    = 1.3
	portraitRatioMax    = 2.5
	maxChildrenScanned  = 20

	// EngagedConfidence is the score at which a UI tree counts as short-form
	// video viewing.
	EngagedConfidence = 0.7

	unknownAppConfidence = 0.5
)

const (
	PatternFullScreenScroll = "full-screen-scroll"
	PatternPortraitVideo    = "portrait-video"
	PatternVerticalSwipe    = "vertical-swipe"
	PatternShortsKeyword    = "shorts-keyword"
)

// Bounds is a node rectangle in screen pixels.
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (b Bounds) Width() int  { return b.Right - b.Left }
func (b Bounds) Height() int { return b.Bottom - b.Top }

// Node is one element of an accessibility tree snapshot.
type Node struct {
	ClassName          string `json:"class_name,omitempty"`
	ViewID             string `json:"view_id,omitempty"`
	ContentDescription string `json:"content_description,omitempty"`
	Text               string `json:"text,omitempty"`
	Scrollable         bool   `json:"scrollable,omitempty"`
	Bounds             Bounds `json:"bounds"`
	Children           []Node `json:"children,omitempty"`
}

// Screen is the device resolution the tree was captured on.
type Screen struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultScreen is a common 1080x2400 phone panel.
var DefaultScreen = Screen{Width: 1080, Height: 2400}

// Analysis is the outcome of scoring one tree.
type Analysis struct {
	Confidence float64  `json:"confidence"`
	Patterns   []string `json:"patterns"`
}

// Engaged reports whether the score crosses the engagement threshold.
func (a Analysis) Engaged() bool {
	return a.Confidence >= EngagedConfidence
}

type patternRule struct {
	name   string
	weight float64
}

type patternCheck func(m *PatternMatcher, n *Node) bool

var patternChecks = map[string]patternCheck{
	PatternFullScreenScroll: (*PatternMatcher).fullScreenScrollable,
	PatternPortraitVideo:    (*PatternMatcher).largePortrait,
	PatternVerticalSwipe:    (*PatternMatcher).verticalSwipe,
	PatternShortsKeyword:    (*PatternMatcher).shortsKeyword,
}

var reelRules = []patternRule{
	{PatternFullScreenScroll, 0.4},
	{PatternPortraitVideo, 0.4},
	{PatternVerticalSwipe, 0.2},
}

// appRules maps known packages to their weighted UI patterns. Packages not
// listed score unknownAppConfidence.
var appRules = map[string][]patternRule{
	"com.instagram.android":    reelRules,
	"com.zhiliaoapp.musically": reelRules,
	"com.google.android.youtube": {
		{PatternShortsKeyword, 0.5},
		{PatternFullScreenScroll, 0.3},
		{PatternPortraitVideo, 0.2},
	},
}

// PatternMatcher scores accessibility trees for short-form video layouts.
// The checks are app-agnostic layout traits, weighted per app.
type PatternMatcher struct {
	screen Screen
}

// NewPatternMatcher creates a matcher for the given screen size. A zero
// size means DefaultScreen.
func NewPatternMatcher(screen Screen) *PatternMatcher {
	if screen.Width <= 0 || screen.Height <= 0 {
		screen = DefaultScreen
	}
	return &PatternMatcher{screen: screen}
}

// Analyze scores root as captured from packageID.
func (m *PatternMatcher) Analyze(root *Node, packageID string) Analysis {
	rules, ok := appRules[packageID]
	if !ok {
		return Analysis{Confidence: unknownAppConfidence, Patterns: []string{}}
	}

	analysis := Analysis{Patterns: []string{}}
	if root == nil {
		return analysis
	}
	for _, rule := range rules {
		check := patternChecks[rule.name]
		if search(root, func(n *Node) bool { return check(m, n) }) {
			analysis.Confidence += rule.weight
			analysis.Patterns = append(analysis.Patterns, rule.name)
		}
	}
	if analysis.Confidence > 1 {
		analysis.Confidence = 1
	}
	return analysis
}

func (m *PatternMatcher) tall(n *Node) bool {
	return float64(n.Bounds.Height()) >= float64(m.screen.Height)*fullScreenThreshold
}

func (m *PatternMatcher) fullScreenScrollable(n *Node) bool {
	return n.Scrollable && m.tall(n)
}

func (m *PatternMatcher) largePortrait(n *Node) bool {
	width := n.Bounds.Width()
	if !m.tall(n) || width <= 0 {
		return false
	}
	ratio := float64(n.Bounds.Height()) / float64(width)
	return ratio >= portraitRatioMin && ratio <= portraitRatioMax
}

func (m *PatternMatcher) verticalSwipe(n *Node) bool {
	if !n.Scrollable {
		return false
	}
	class := strings.ToLower(n.ClassName)
	return strings.Contains(class, "viewpager") || strings.Contains(class, "recyclerview")
}

func (m *PatternMatcher) shortsKeyword(n *Node) bool {
	for _, s := range []string{n.ViewID, n.ContentDescription, n.Text} {
		if strings.Contains(strings.ToLower(s), "shorts") {
			return true
		}
	}
	return false
}

// search walks the tree depth first, scanning at most maxChildrenScanned
// children per node.
func search(n *Node, match func(*Node) bool) bool {
	if match(n) {
		return true
	}
	for i := range n.Children {
		if i >= maxChildrenScanned {
			break
		}
		if search(&n.Children[i], match) {
			return true
		}
	}
	return false
}
