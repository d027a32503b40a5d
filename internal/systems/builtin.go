package systems

import "github.com/nvandessel/convbench/internal/plant"

// Builtin returns a registry holding the built-in cascades.
func Builtin() *Registry {
	r := NewRegistry()
	for _, d := range []Definition{
		Cascade("light_ends_cascade", "Light ends cascade", "Light\nends",
			0.02, []float64{0, 0.005, 0.01, 0.015, 0.02}, lightEnds()),
		Cascade("alkane_recycle_cascade", "Alkane recycle cascade", "Alkane\nrecycle",
			0.03, []float64{0, 0.01, 0.02, 0.03}, alkaneRecycle()),
		Cascade("wide_boiling_cascade", "Wide boiling cascade", "Wide\nboiling",
			0.05, []float64{0, 0.01, 0.02, 0.03, 0.04, 0.05}, wideBoiling()),
	} {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

func lightEnds() plant.Config {
	return plant.Config{
		Chemicals: []plant.Chemical{
			{ID: "propane", K0: 4.0, A: 0.025, Cp: 120, Latent: 19000},
			{ID: "butane", K0: 1.0, A: 0.03, Cp: 140, Latent: 22000},
			{ID: "pentane", K0: 0.3, A: 0.035, Cp: 170, Latent: 26000},
		},
		Feed:                 []float64{30, 40, 30},
		FeedTemperature:      350,
		FeedVaporFraction:    0.2,
		Stages:               8,
		FeedStage:            4,
		FlowRatio:            1.0,
		BoilupRatio:          1.2,
		CondenserTemperature: 330,
		RecycleFraction:      0.3,
		ReferenceTemperature: 350,
	}
}

func alkaneRecycle() plant.Config {
	return plant.Config{
		Chemicals: []plant.Chemical{
			{ID: "butane", K0: 3.0, A: 0.028, Cp: 140, Latent: 22000},
			{ID: "hexane", K0: 0.8, A: 0.032, Cp: 195, Latent: 29000},
			{ID: "octane", K0: 0.2, A: 0.036, Cp: 255, Latent: 35000},
		},
		Feed:                 []float64{25, 50, 25},
		FeedTemperature:      370,
		FeedVaporFraction:    0.1,
		Stages:               12,
		FeedStage:            6,
		FlowRatio:            1.0,
		BoilupRatio:          1.3,
		CondenserTemperature: 345,
		RecycleFraction:      0.6,
		ReferenceTemperature: 370,
	}
}

func wideBoiling() plant.Config {
	return plant.Config{
		Chemicals: []plant.Chemical{
			{ID: "ethane", K0: 8.0, A: 0.02, Cp: 75, Latent: 15000},
			{ID: "butane", K0: 2.0, A: 0.025, Cp: 140, Latent: 22000},
			{ID: "hexane", K0: 0.6, A: 0.03, Cp: 195, Latent: 29000},
			{ID: "decane", K0: 0.1, A: 0.04, Cp: 315, Latent: 39000},
		},
		Feed:                 []float64{20, 30, 30, 20},
		FeedTemperature:      380,
		FeedVaporFraction:    0.25,
		Stages:               16,
		FeedStage:            8,
		FlowRatio:            1.1,
		BoilupRatio:          1.5,
		CondenserTemperature: 340,
		RecycleFraction:      0.5,
		ReferenceTemperature: 380,
	}
}
