package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tsawler/go-latent/tensor"
)

// DefaultExtensions are the file types ImageFolder picks up
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// ImageFolder is a dataset loaded from a directory in which every
// subdirectory is a class. Images are decoded lazily on Get.
type ImageFolder struct {
	root       string
	size       int
	imagePaths []string
	labels     []int
	classNames []string
}

// NewImageFolder scans root. Classes are numbered in lexical order of their
// directory names; extensions are matched case-insensitively.
func NewImageFolder(root string, size int, extensions []string) (*ImageFolder, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	d := &ImageFolder{root: root, size: size}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		classDir := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list class %s: %w", entry.Name(), err)
		}

		var paths []string
		for _, f := range files {
			if f.IsDir() || !allowed[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			paths = append(paths, filepath.Join(classDir, f.Name()))
		}
		if len(paths) == 0 {
			continue
		}
		sort.Strings(paths)

		classIdx := len(d.classNames)
		d.classNames = append(d.classNames, entry.Name())
		for _, p := range paths {
			d.imagePaths = append(d.imagePaths, p)
			d.labels = append(d.labels, classIdx)
		}
	}

	if len(d.imagePaths) == 0 {
		return nil, fmt.Errorf("no images found in %s", root)
	}
	return d, nil
}

// Len returns the number of items in the dataset
func (d *ImageFolder) Len() int {
	return len(d.imagePaths)
}

// Get decodes image idx
func (d *ImageFolder) Get(idx int) (*tensor.Tensor, int, error) {
	if idx < 0 || idx >= len(d.imagePaths) {
		return nil, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, len(d.imagePaths))
	}

	f, err := os.Open(d.imagePaths[idx])
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	img, err := DecodeImage(f, d.size)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", d.imagePaths[idx], err)
	}
	return img, d.labels[idx], nil
}

// Path returns the file backing sample idx
func (d *ImageFolder) Path(idx int) string {
	return d.imagePaths[idx]
}

// NumClasses returns the number of classes
func (d *ImageFolder) NumClasses() int {
	return len(d.classNames)
}

// ClassNames returns the list of class names
func (d *ImageFolder) ClassNames() []string {
	return d.classNames
}

// ClassDistribution returns the number of samples per class
func (d *ImageFolder) ClassDistribution() map[string]int {
	dist := make(map[string]int)
	for _, label := range d.labels {
		dist[d.classNames[label]]++
	}
	return dist
}

func (d *ImageFolder) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ImageFolder %s: %d samples, %d classes\n", d.root, len(d.imagePaths), len(d.classNames))
	dist := d.ClassDistribution()
	for _, name := range d.classNames {
		fmt.Fprintf(&sb, "  %s: %d samples\n", name, dist[name])
	}
	return sb.String()
}
