// Package artifacts writes the files a run leaves behind: loss-curve plot
// data, the sidecar plotting client, and latent exports.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tsawler/go-latent/metrics"
)

// PlotType represents different types of plots that can be generated
type PlotType string

const (
	TrainingCurves      PlotType = "training_curves"
	ConfusionMatrixPlot PlotType = "confusion_matrix"
)

// PlotData represents the universal JSON format for the sidecar plotting service
type PlotData struct {
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	Series []SeriesData `json:"series"`
	Config PlotConfig   `json:"config"`

	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "heatmap"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`
	Label string      `json:"label,omitempty"`
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel    string                 `json:"x_axis_label"`
	YAxisLabel    string                 `json:"y_axis_label"`
	XAxisScale    string                 `json:"x_axis_scale"`
	YAxisScale    string                 `json:"y_axis_scale"`
	ShowLegend    bool                   `json:"show_legend"`
	ShowGrid      bool                   `json:"show_grid"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	Interactive   bool                   `json:"interactive"`
	CustomOptions map[string]interface{} `json:"custom_options,omitempty"`
}

// TrainingCurvesPlot builds the per-epoch train and validation loss curves.
// Epochs are numbered from 1 on the x axis.
func TrainingCurvesPlot(modelName string, trainLoss, valLoss []float64) PlotData {
	series := []SeriesData{
		lossSeries("Train Loss", trainLoss, map[string]interface{}{
			"color":      "#FF6B6B",
			"line_width": 2,
		}),
		lossSeries("Val Loss", valLoss, map[string]interface{}{
			"color":      "#FF9F43",
			"line_width": 2,
			"line_style": "dashed",
		}),
	}

	plot := PlotData{
		PlotType:  TrainingCurves,
		Title:     fmt.Sprintf("Training Curves - %s", modelName),
		Timestamp: time.Now(),
		ModelName: modelName,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel:  "Epoch",
			YAxisLabel:  "MSE Loss",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
	if len(trainLoss) > 0 && len(valLoss) > 0 {
		plot.Metrics = map[string]interface{}{
			"final_train_loss": trainLoss[len(trainLoss)-1],
			"final_val_loss":   valLoss[len(valLoss)-1],
		}
	}
	return plot
}

func lossSeries(name string, losses []float64, style map[string]interface{}) SeriesData {
	data := make([]DataPoint, len(losses))
	for i, loss := range losses {
		data[i] = DataPoint{X: i + 1, Y: loss}
	}
	return SeriesData{Name: name, Type: "line", Data: data, Style: style}
}

// ConfusionMatrixHeatmap renders a classifier's confusion matrix. Class
// names fall back to the numeric label when names is nil or short.
func ConfusionMatrixHeatmap(modelName string, cm *metrics.ConfusionMatrix, names map[int]string) PlotData {
	label := func(c int) string {
		if n, ok := names[c]; ok {
			return n
		}
		return strconv.Itoa(c)
	}

	classNames := make([]string, len(cm.Classes))
	for i, c := range cm.Classes {
		classNames[i] = label(c)
	}

	var data []DataPoint
	for i, row := range cm.Matrix {
		for j, value := range row {
			data = append(data, DataPoint{
				X:     j,
				Y:     i,
				Z:     value,
				Label: fmt.Sprintf("True: %s, Pred: %s", classNames[i], classNames[j]),
			})
		}
	}

	return PlotData{
		PlotType:  ConfusionMatrixPlot,
		Title:     fmt.Sprintf("Confusion Matrix - %s", modelName),
		Timestamp: time.Now(),
		ModelName: modelName,
		Series: []SeriesData{{
			Name:  "Confusion Matrix",
			Type:  "heatmap",
			Data:  data,
			Style: map[string]interface{}{"colorscale": "Blues"},
		}},
		Config: PlotConfig{
			XAxisLabel:  "Predicted Class",
			YAxisLabel:  "True Class",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			Width:       600,
			Height:      600,
			Interactive: true,
			CustomOptions: map[string]interface{}{
				"class_names": classNames,
			},
		},
		Metrics: map[string]interface{}{
			"weighted_f1": cm.GetMetric(metrics.WeightedF1Score),
			"accuracy":    cm.GetMetric(metrics.Accuracy),
		},
	}
}

// ToJSON converts plot data to indented JSON
func (pd PlotData) ToJSON() (string, error) {
	jsonData, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data to JSON: %w", err)
	}
	return string(jsonData), nil
}

// WritePlot writes plot data as JSON to path
func WritePlot(path string, pd PlotData) error {
	data, err := pd.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write plot data: %w", err)
	}
	return nil
}
