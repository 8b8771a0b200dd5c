package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/tsawler/go-latent/dataset"
	"github.com/tsawler/go-latent/parallel"
	"github.com/tsawler/go-latent/tensor"
)

// DataLoader provides batching and per-epoch shuffling over a dataset
type DataLoader struct {
	dataset    dataset.Dataset
	batchSize  int
	shuffle    bool
	numWorkers int
	device     tensor.DeviceType
	rng        *rand.Rand
	indices    []int
	position   int
	mutex      sync.Mutex
}

// Batch represents a batch of images and their labels
type Batch struct {
	Data    *tensor.Tensor // [N, C, H, W]
	Labels  []int
	Indices []int // dataset indices in batch order
}

// Size returns the number of samples in the batch
func (b *Batch) Size() int {
	return len(b.Labels)
}

// NewDataLoader creates a new DataLoader. A shuffling loader needs rng;
// samples are decoded concurrently by numWorkers goroutines.
func NewDataLoader(ds dataset.Dataset, batchSize int, shuffle bool, rng *rand.Rand, numWorkers int, device tensor.DeviceType) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("shuffling loader requires a random source")
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	indices := make([]int, ds.Len())
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:    ds,
		batchSize:  batchSize,
		shuffle:    shuffle,
		numWorkers: numWorkers,
		device:     device,
		rng:        rng,
		indices:    indices,
	}, nil
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (len(dl.indices) + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader for a new epoch, reshuffling if enabled
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch or nil if epoch is complete. The final batch
// of an epoch may be smaller than the batch size.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := make([]int, batchEnd-dl.position)
	copy(batchIndices, dl.indices[dl.position:batchEnd])
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	return batch, nil
}

// HasNext returns true if there are more batches in the current epoch
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	samples := make([]*tensor.Tensor, len(indices))
	labels := make([]int, len(indices))
	errs := make([]error, len(indices))

	parallel.ForEach(len(indices), dl.numWorkers, func(i int) {
		img, label, err := dl.dataset.Get(indices[i])
		if err != nil {
			errs[i] = fmt.Errorf("sample %d: %w", indices[i], err)
			return
		}
		samples[i] = img
		labels[i] = label
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	data, err := tensor.Stack(samples)
	if err != nil {
		return nil, err
	}
	if data, err = data.To(dl.device); err != nil {
		return nil, err
	}

	return &Batch{Data: data, Labels: labels, Indices: indices}, nil
}
