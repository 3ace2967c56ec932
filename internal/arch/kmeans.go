package arch

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

const kmeansMaxIter = 100

// kmeans clusters points into k groups with k-means++ seeding and Lloyd
// iterations. It returns the centroids and the assignment of every point.
// With fewer distinct points than k some centroids coincide.
func kmeans(points [][]float64, k int, rng *rand.Rand) ([][]float64, []int) {
	centroids := seedCentroids(points, k, rng)
	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}
	for range kmeansMaxIter {
		changed := false
		for i, p := range points {
			c, _ := nearest(p, centroids)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, len(points[0]))
		}
		for i, p := range points {
			floats.Add(sums[assign[i]], p)
			counts[assign[i]]++
		}
		for c := range centroids {
			// An emptied cluster keeps its previous centroid.
			if counts[c] > 0 {
				floats.Scale(1/float64(counts[c]), sums[c])
				centroids[c] = sums[c]
			}
		}
	}
	return centroids, assign
}

func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[rng.IntN(len(points))]))
	dist := make([]float64, len(points))
	for len(centroids) < k {
		for i, p := range points {
			_, dist[i] = nearest(p, centroids)
		}
		total := floats.Sum(dist)
		if total == 0 {
			centroids = append(centroids, clonePoint(points[rng.IntN(len(points))]))
			continue
		}
		target := rng.Float64() * total
		pick := len(points) - 1
		for i, d := range dist {
			target -= d
			if target < 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, clonePoint(points[pick]))
	}
	return centroids
}

// nearest returns the index of the closest centroid and the squared distance
// to it. Ties go to the lowest index.
func nearest(p []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		d := floats.Distance(p, centroid, 2)
		if d*d < bestDist {
			best, bestDist = c, d*d
		}
	}
	return best, bestDist
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}
