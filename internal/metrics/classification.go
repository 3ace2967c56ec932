package metrics

import (
	"math"
	"sort"
	"strconv"

	"github.com/sjwhitworth/golearn/evaluation"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
)

// Confusion counts predictions per (reference, predicted) class pair.
type Confusion struct {
	classes int
	counts  [][]int
}

// NewConfusion returns an empty matrix over classes labels.
func NewConfusion(classes int) *Confusion {
	c := &Confusion{classes: classes, counts: make([][]int, classes)}
	for i := range c.counts {
		c.counts[i] = make([]int, classes)
	}
	return c
}

// Add records one prediction.
func (c *Confusion) Add(ref, pred int) { c.counts[ref][pred]++ }

// Total returns the number of recorded predictions.
func (c *Confusion) Total() int {
	n := 0
	for _, row := range c.counts {
		for _, v := range row {
			n += v
		}
	}
	return n
}

func (c *Confusion) matrix() evaluation.ConfusionMatrix {
	m := make(evaluation.ConfusionMatrix, c.classes)
	for ref, row := range c.counts {
		inner := make(map[string]int, c.classes)
		for pred, v := range row {
			inner[strconv.Itoa(pred)] = v
		}
		m[strconv.Itoa(ref)] = inner
	}
	return m
}

// Accuracy is the fraction of correct predictions.
func (c *Confusion) Accuracy() float64 {
	if c.Total() == 0 {
		return math.NaN()
	}
	return evaluation.GetAccuracy(c.matrix())
}

// ClassScores returns precision, recall and F1 for one class. Undefined
// ratios (no predictions or no references of the class) are 0.
func (c *Confusion) ClassScores(class int) (precision, recall, f1 float64) {
	m := c.matrix()
	label := strconv.Itoa(class)
	precision = zeroNaN(evaluation.GetPrecision(label, m))
	recall = zeroNaN(evaluation.GetRecall(label, m))
	if precision+recall > 0 {
		f1 = zeroNaN(evaluation.GetF1Score(label, m))
	}
	return precision, recall, f1
}

// Macro averages ClassScores over every class.
func (c *Confusion) Macro() (precision, recall, f1 float64) {
	for class := range c.classes {
		p, r, f := c.ClassScores(class)
		precision += p
		recall += r
		f1 += f
	}
	n := float64(c.classes)
	return precision / n, recall / n, f1 / n
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// AUC returns the area under the ROC curve of scores against binary labels,
// using the rank statistic with tied scores sharing their average rank. It is
// NaN when either class is absent.
func AUC(scores []float64, labels []int) float64 {
	n := len(scores)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var positives, negatives, rankSum float64
	for i := 0; i < n; {
		j := i
		for j < n && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			if labels[idx[k]] == 1 {
				rankSum += avg
			}
		}
		i = j
	}
	for _, l := range labels {
		if l == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return math.NaN()
	}
	return (rankSum - positives*(positives+1)/2) / (positives * negatives)
}

type classificationEvaluator struct {
	monitor Monitor
	classes int

	ceSum     float64
	count     int
	confusion *Confusion
	scores    []float64
	labels    []int
}

func (e *classificationEvaluator) Monitor() Monitor { return e.monitor }

func (e *classificationEvaluator) Reset() {
	e.ceSum, e.count = 0, 0
	e.confusion = nil
	e.scores, e.labels = nil, nil
}

func (e *classificationEvaluator) Update(b *data.Batch, p *core.Prediction) error {
	if b.Labels == nil {
		return errs.DataShape("classification evaluation needs labels", nil, nil)
	}
	if p.Probabilities == nil || p.Probabilities.Dim(0) != len(b.Labels) {
		return errs.DataShape("class probabilities", []int{len(b.Labels)}, nil)
	}
	classes := p.Probabilities.Dim(1)
	if e.confusion == nil {
		e.classes = max(e.classes, classes)
		e.confusion = NewConfusion(e.classes)
	}
	probs := p.Probabilities.Data()
	for i, label := range b.Labels {
		if label < 0 || label >= e.classes {
			return errs.DataShape("label out of range", []int{e.classes}, []int{label})
		}
		row := probs[i*classes : (i+1)*classes]
		e.ceSum -= math.Log(math.Max(row[label], 1e-12))
		e.count++
		e.confusion.Add(label, argmax(row))
		if classes == 2 {
			e.scores = append(e.scores, row[1])
			e.labels = append(e.labels, label)
		}
	}
	return nil
}

func (e *classificationEvaluator) Result() Result {
	if e.count == 0 {
		return Result{CrossEntropy: math.NaN(), Accuracy: math.NaN()}
	}
	precision, recall, f1 := e.confusion.Macro()
	r := Result{
		CrossEntropy: e.ceSum / float64(e.count),
		Accuracy:     e.confusion.Accuracy(),
		Precision:    precision,
		Recall:       recall,
		F1:           f1,
	}
	if e.classes == 2 {
		r[ROCAUC] = AUC(e.scores, e.labels)
	}
	return r
}

func argmax(row []float64) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
