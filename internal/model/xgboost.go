// Package model loads gradient-boosted tree classifiers saved with XGBoost's
// JSON model format and evaluates them without the XGBoost runtime.
package model

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const leafMarker = -1

// Booster is an immutable binary classifier. It is safe for concurrent use.
type Booster struct {
	numFeature   int
	baseMargin   float64
	objective    string
	featureNames []string
	trees        []*tree
	// Trees used for prediction; early-stopped models stop at best_iteration.
	predictTrees int
}

type tree struct {
	left        []int
	right       []int
	splitIndex  []int
	splitCond   []float32
	defaultLeft []bool
	lossChange  []float64
	categories  map[int]map[int]bool
}

// NumFeatures returns the input width the booster was trained on
func (b *Booster) NumFeatures() int {
	return b.numFeature
}

// NumTrees returns the total number of trees in the model
func (b *Booster) NumTrees() int {
	return len(b.trees)
}

// Objective returns the learning objective, e.g. "binary:logistic"
func (b *Booster) Objective() string {
	return b.objective
}

// FeatureNames returns the column names stored with the model, if any
func (b *Booster) FeatureNames() []string {
	return b.featureNames
}

// Margin returns the raw untransformed score for x
func (b *Booster) Margin(x []float64) (float64, error) {
	if len(x) != b.numFeature {
		return 0, fmt.Errorf("expected %d features, got %d", b.numFeature, len(x))
	}
	var sum float32
	for _, t := range b.trees[:b.predictTrees] {
		sum += t.leaf(x)
	}
	return b.baseMargin + float64(sum), nil
}

// PredictProba returns the probability of the positive class for x
func (b *Booster) PredictProba(x []float64) (float64, error) {
	margin, err := b.Margin(x)
	if err != nil {
		return 0, err
	}
	return sigmoid(margin), nil
}

// Importance returns the average gain of the splits on each feature, keyed by
// column index. Features never used for a split are absent.
func (b *Booster) Importance() map[int]float64 {
	total := make(map[int]float64)
	count := make(map[int]int)
	for _, t := range b.trees {
		for n := range t.left {
			if t.left[n] == leafMarker {
				continue
			}
			f := t.splitIndex[n]
			total[f] += t.lossChange[n]
			count[f]++
		}
	}
	out := make(map[int]float64, len(total))
	for f, g := range total {
		out[f] = g / float64(count[f])
	}
	return out
}

func (t *tree) leaf(x []float64) float32 {
	n := 0
	for t.left[n] != leafMarker {
		fv := x[t.splitIndex[n]]
		switch {
		case math.IsNaN(fv):
			if t.defaultLeft[n] {
				n = t.left[n]
			} else {
				n = t.right[n]
			}
		case t.categories[n] != nil:
			// Categories in the node's set go right
			if fv >= 0 && fv == math.Trunc(fv) && t.categories[n][int(fv)] {
				n = t.right[n]
			} else {
				n = t.left[n]
			}
		case float32(fv) < t.splitCond[n]:
			n = t.left[n]
		default:
			n = t.right[n]
		}
	}
	return t.splitCond[n]
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// LoadFile reads a booster from an XGBoost JSON model file
func LoadFile(path string) (*Booster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model %s: %w", path, err)
	}
	defer f.Close()

	b, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", path, err)
	}
	return b, nil
}

// Load decodes a booster from an XGBoost JSON model document
func Load(r io.Reader) (*Booster, error) {
	var doc modelDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding model json: %w", err)
	}
	return doc.booster()
}

type modelDocument struct {
	Learner struct {
		Attributes      map[string]string `json:"attributes"`
		FeatureNames    []string          `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				GBTreeModelParam struct {
					NumTrees        string `json:"num_trees"`
					NumParallelTree string `json:"num_parallel_tree"`
				} `json:"gbtree_model_param"`
				Trees    []treeDocument `json:"trees"`
				TreeInfo []int          `json:"tree_info"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type treeDocument struct {
	LeftChildren       []int     `json:"left_children"`
	RightChildren      []int     `json:"right_children"`
	SplitIndices       []int     `json:"split_indices"`
	SplitConditions    []float64 `json:"split_conditions"`
	DefaultLeft        flexBools `json:"default_left"`
	LossChanges        []float64 `json:"loss_changes"`
	SplitType          []int     `json:"split_type"`
	Categories         []int     `json:"categories"`
	CategoriesNodes    []int     `json:"categories_nodes"`
	CategoriesSegments []int     `json:"categories_segments"`
	CategoriesSizes    []int     `json:"categories_sizes"`
}

// flexBools accepts both the 0/1 and true/false encodings XGBoost has used
type flexBools []bool

func (f *flexBools) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(flexBools, len(raw))
	for i, v := range raw {
		switch t := v.(type) {
		case bool:
			out[i] = t
		case float64:
			out[i] = t != 0
		default:
			return fmt.Errorf("default_left[%d]: unexpected %T", i, v)
		}
	}
	*f = out
	return nil
}

func (d *modelDocument) booster() (*Booster, error) {
	l := d.Learner

	if name := l.GradientBooster.Name; name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}
	switch l.Objective.Name {
	case "binary:logistic", "reg:logistic":
	default:
		return nil, fmt.Errorf("unsupported objective %q", l.Objective.Name)
	}
	if nc := parseIntParam(l.LearnerModelParam.NumClass, 0); nc > 1 {
		return nil, fmt.Errorf("multi-class models are not supported (num_class=%d)", nc)
	}

	numFeature := parseIntParam(l.LearnerModelParam.NumFeature, 0)
	if numFeature <= 0 {
		return nil, fmt.Errorf("invalid num_feature %q", l.LearnerModelParam.NumFeature)
	}

	baseScore, err := parseBaseScore(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, fmt.Errorf("base_score %v is outside (0, 1)", baseScore)
	}

	trees := make([]*tree, 0, len(l.GradientBooster.Model.Trees))
	for i, td := range l.GradientBooster.Model.Trees {
		t, err := td.tree(numFeature)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		trees = append(trees, t)
	}

	predictTrees := len(trees)
	if s, ok := l.Attributes["best_iteration"]; ok {
		best, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid best_iteration %q", s)
		}
		parallel := parseIntParam(l.GradientBooster.Model.GBTreeModelParam.NumParallelTree, 1)
		if parallel < 1 {
			parallel = 1
		}
		if n := (best + 1) * parallel; n < predictTrees {
			predictTrees = n
		}
	}

	return &Booster{
		numFeature:   numFeature,
		baseMargin:   math.Log(baseScore / (1 - baseScore)),
		objective:    l.Objective.Name,
		featureNames: l.FeatureNames,
		trees:        trees,
		predictTrees: predictTrees,
	}, nil
}

func (td *treeDocument) tree(numFeature int) (*tree, error) {
	n := len(td.LeftChildren)
	if n == 0 {
		return nil, fmt.Errorf("tree has no nodes")
	}
	if len(td.RightChildren) != n || len(td.SplitIndices) != n || len(td.SplitConditions) != n || len(td.DefaultLeft) != n {
		return nil, fmt.Errorf("node arrays have inconsistent lengths")
	}

	t := &tree{
		left:        td.LeftChildren,
		right:       td.RightChildren,
		splitIndex:  td.SplitIndices,
		splitCond:   make([]float32, n),
		defaultLeft: td.DefaultLeft,
		lossChange:  td.LossChanges,
	}
	if len(t.lossChange) != n {
		t.lossChange = make([]float64, n)
	}
	for i, c := range td.SplitConditions {
		t.splitCond[i] = float32(c)
	}

	for i := 0; i < n; i++ {
		if t.left[i] == leafMarker {
			continue
		}
		if t.left[i] <= i || t.left[i] >= n || t.right[i] <= i || t.right[i] >= n {
			return nil, fmt.Errorf("node %d has invalid children", i)
		}
		if t.splitIndex[i] < 0 || t.splitIndex[i] >= numFeature {
			return nil, fmt.Errorf("node %d splits on feature %d outside [0, %d)", i, t.splitIndex[i], numFeature)
		}
	}

	if len(td.CategoriesNodes) > 0 {
		if len(td.CategoriesSegments) != len(td.CategoriesNodes) || len(td.CategoriesSizes) != len(td.CategoriesNodes) {
			return nil, fmt.Errorf("categorical split arrays have inconsistent lengths")
		}
		t.categories = make(map[int]map[int]bool, len(td.CategoriesNodes))
		for i, node := range td.CategoriesNodes {
			start, size := td.CategoriesSegments[i], td.CategoriesSizes[i]
			if start < 0 || size < 0 || start+size > len(td.Categories) {
				return nil, fmt.Errorf("categorical node %d segment out of range", node)
			}
			set := make(map[int]bool, size)
			for _, c := range td.Categories[start : start+size] {
				set[c] = true
			}
			t.categories[node] = set
		}
	}

	return t, nil
}

// parseBaseScore accepts both "5E-1" and the bracketed "[5E-1]" form
func parseBaseScore(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return 0.5, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q: %w", s, err)
	}
	return v, nil
}

func parseIntParam(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// TopFeatures returns up to n (index, gain) pairs ordered by descending gain,
// ties broken by column index
func TopFeatures(importance map[int]float64, n int) []FeatureGain {
	out := make([]FeatureGain, 0, len(importance))
	for f, g := range importance {
		out = append(out, FeatureGain{Index: f, Gain: g})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gain != out[j].Gain {
			return out[i].Gain > out[j].Gain
		}
		return out[i].Index < out[j].Index
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// FeatureGain is one feature's average split gain
type FeatureGain struct {
	Index int
	Gain  float64
}
