package runner

var defaultHistogramBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60,
}

var customBuckets = map[string][]float64{
	"processor.event_lag": {
		1, 5, 30, 60, 300, 900, 3600, 21600, 86400, // 1s up to a day
	},
	"router.delivery_time": {
		0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
	},
}
