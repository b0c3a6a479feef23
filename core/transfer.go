package core

import (
	"math"

	"github.com/signalsfoundry/wastewater-simulator/model"
)

// TransferFunc maps an inlet sample and unit configuration to the outlet
// sample. Implementations are pure: identical inputs give identical outputs.
type TransferFunc func(in model.WaterSample, cfg model.UnitConfig) model.WaterSample

const (
	// arrheniusTheta is the temperature correction base, anchored at 20 °C.
	arrheniusTheta = 1.035
	// nitrateYield is the fraction of removed ammonium that appears as nitrate.
	nitrateYield = 0.9
	// nitrogenOxygenDemand is the stoichiometric O2 demand per unit NH4 oxidised.
	nitrogenOxygenDemand = 4.57
	// oxygenDemandFactor scales the total oxygen demand of removed load.
	oxygenDemandFactor = 1.5
)

const (
	chlorineResidual           = 0.7
	chlorideByproduct          = 1.46
	precipitateYield           = 2.0
	nitrificationAlkalinityUse = 0.5
	electrocoagulationPHRise   = 0.5
	electrocoagulationECRise   = 200.0
)

type transferSpec struct {
	fn TransferFunc
	// byproducts lists the parameters this kind may raise; every other
	// parameter is only ever held or reduced.
	byproducts []model.Parameter
}

type removal struct {
	param    model.Parameter
	fraction float64
}

// kinetics describes a first-order biological unit. A zero rate means the
// parameter is not targeted.
type kinetics struct {
	kBOD, kCOD, kNH4 float64
}

var transferTable = map[model.UnitKind]transferSpec{
	model.Source:    {fn: passThrough},
	model.Sink:      {fn: passThrough},
	model.Pump:      {fn: passThrough},
	model.FlowMeter: {fn: passThrough},

	model.PrimarySedimentationTank: {fn: separation(
		removal{model.TSS, 0.60},
		removal{model.BOD, 0.35},
		removal{model.Turbidity, 0.50},
		removal{model.Pathogens, 0.60},
	)},
	model.PrimaryClarifier: {fn: separation(
		removal{model.TSS, 0.70},
		removal{model.OilGrease, 0.90},
		removal{model.Turbidity, 0.20},
	)},
	model.SecondaryClarifier: {fn: separation(
		removal{model.TSS, 0.85},
		removal{model.Turbidity, 0.30},
	)},
	model.Filtration: {fn: separation(
		removal{model.TSS, 0.80},
		removal{model.Turbidity, 0.70},
	)},
	model.OilGreaseSeparator: {fn: separation(
		removal{model.OilGrease, 0.90},
		removal{model.Turbidity, 0.10},
	)},
	model.SludgeDigester:        {fn: separation(removal{model.TSS, 0.55})},
	model.DryingBed:             {fn: separation(removal{model.TSS, 0.95})},
	model.AnaerobicFilter:       {fn: separation(removal{model.COD, 0.65})},
	model.ActivatedCarbonFilter: {fn: separation(removal{model.COD, 0.30})},
	model.WaterSoftener:         {fn: separation(removal{model.Hardness, 0.90})},
	model.MetalsRemoval:         {fn: separation(removal{model.HeavyMetals, 0.85})},
	model.ChemicalOxidation: {fn: separation(
		removal{model.COD, 0.70},
		removal{model.Turbidity, 0.20},
	)},
	model.CoagulationFlocculation: {fn: separation(
		removal{model.COD, 0.40},
		removal{model.TSS, 0.60},
	)},
	model.MembraneFiltration: {fn: separation(
		removal{model.COD, 0.20},
		removal{model.TSS, 0.45},
		removal{model.Pathogens, 0.9999},
	)},
	model.MembraneFiltrationUnit: {fn: separation(
		removal{model.Pathogens, 0.9999},
		removal{model.TSS, 0.99},
	)},
	model.ReverseOsmosis: {fn: separation(
		removal{model.Salinity, 0.95},
		removal{model.Conductivity, 0.95},
	)},

	model.UVDisinfection: {fn: separation(removal{model.Pathogens, 0.999})},
	model.OzoneDisinfection: {fn: separation(
		removal{model.Pathogens, 0.999},
		removal{model.COD, 0.90},
		removal{model.TSS, 0.90},
	)},
	model.ChlorineDisinfection: {
		fn:         chlorination,
		byproducts: []model.Parameter{model.ResidualChlorine, model.Chlorides},
	},

	model.PhosphorusRemoval: {
		fn:         phosphorusPrecipitation,
		byproducts: []model.Parameter{model.TSS},
	},
	model.Electrocoagulation: {
		fn:         electrocoagulation,
		byproducts: []model.Parameter{model.PH, model.Conductivity},
	},
	model.HeatExchanger: {
		fn:         heatExchange,
		byproducts: []model.Parameter{model.Temperature},
	},

	model.AerationTank: {
		fn:         biological(kinetics{kBOD: 0.2, kNH4: 0.1}),
		byproducts: []model.Parameter{model.NO3},
	},
	model.ActiveSludge: {
		fn:         chain(biological(kinetics{kBOD: 0.2, kNH4: 0.1}), separation(removal{model.COD, 0.79})),
		byproducts: []model.Parameter{model.NO3},
	},
	model.NitrificationTank: {
		fn:         chain(biological(kinetics{kNH4: 0.1}), consumption(model.Alkalinity, nitrificationAlkalinityUse)),
		byproducts: []model.Parameter{model.NO3},
	},
	model.Biofilter: {
		fn:         biological(kinetics{kBOD: 0.2, kCOD: 0.1, kNH4: 0.05}),
		byproducts: []model.Parameter{model.NO3},
	},
	model.AnaerobicAerobicFilter: {
		fn:         biological(kinetics{kBOD: 0.2, kCOD: 0.1, kNH4: 0.05}),
		byproducts: []model.Parameter{model.NO3},
	},
	model.MembraneBioreactor: {
		fn:         biological(kinetics{kBOD: 0.1, kCOD: 0.05, kNH4: 0.03}),
		byproducts: []model.Parameter{model.NO3},
	},
}

// Transfer runs the transfer function for kind and then applies any removal
// efficiency overrides from cfg. Unknown kinds pass water through unchanged.
func Transfer(kind model.UnitKind, in model.WaterSample, cfg model.UnitConfig) model.WaterSample {
	spec, ok := transferTable[kind]
	if !ok {
		return in
	}
	out := spec.fn(in, cfg)
	for p, eff := range cfg.RemovalOverrides {
		if !p.Valid() {
			continue
		}
		out.Set(p, clampNonNegative(float64(in.Get(p))*(1-float64(eff))))
	}
	return out
}

// Byproducts reports the parameters kind may increase from inlet to outlet.
func Byproducts(kind model.UnitKind) []model.Parameter {
	spec, ok := transferTable[kind]
	if !ok {
		return nil
	}
	return append([]model.Parameter(nil), spec.byproducts...)
}

// TemperatureFactor is the Arrhenius-style rate correction 1.035^(T-20).
func TemperatureFactor(tempC float64) float64 {
	return math.Pow(arrheniusTheta, tempC-20)
}

// FirstOrderRemoval is the fraction removed by first-order kinetics with
// rate k (1/h) over hrt hours.
func FirstOrderRemoval(k, hrtHours, tempFactor float64) float64 {
	return 1 - math.Exp(-k*hrtHours*tempFactor)
}

func passThrough(in model.WaterSample, _ model.UnitConfig) model.WaterSample {
	return in
}

func separation(removals ...removal) TransferFunc {
	return func(in model.WaterSample, _ model.UnitConfig) model.WaterSample {
		out := in
		for _, r := range removals {
			remove(&out, in, r.param, r.fraction)
		}
		return out
	}
}

func chain(fns ...TransferFunc) TransferFunc {
	return func(in model.WaterSample, cfg model.UnitConfig) model.WaterSample {
		out := in
		for _, fn := range fns {
			out = fn(out, cfg)
		}
		return out
	}
}

func consumption(p model.Parameter, amount float64) TransferFunc {
	return func(in model.WaterSample, _ model.UnitConfig) model.WaterSample {
		out := in
		consume(&out, p, amount)
		return out
	}
}

func biological(k kinetics) TransferFunc {
	return func(in model.WaterSample, cfg model.UnitConfig) model.WaterSample {
		out := in
		tf := TemperatureFactor(float64(in.Get(model.Temperature)))
		hrt := float64(cfg.HRTHours)

		var bodRemoved, codRemoved, nh4Removed float64
		if k.kBOD > 0 {
			bodRemoved = remove(&out, in, model.BOD, FirstOrderRemoval(k.kBOD, hrt, tf))
		}
		if k.kCOD > 0 {
			codRemoved = remove(&out, in, model.COD, FirstOrderRemoval(k.kCOD, hrt, tf))
		}
		if k.kNH4 > 0 {
			nh4Removed = remove(&out, in, model.NH4, FirstOrderRemoval(k.kNH4, hrt, tf))
			out.Set(model.NO3, float32(float64(in.Get(model.NO3))+nh4Removed*nitrateYield))
		}

		demand := (bodRemoved + codRemoved + nh4Removed*nitrogenOxygenDemand) * oxygenDemandFactor
		consume(&out, model.DissolvedOxygen, demand)
		return out
	}
}

func chlorination(in model.WaterSample, _ model.UnitConfig) model.WaterSample {
	out := in
	remove(&out, in, model.Pathogens, 0.99999)
	out.Set(model.ResidualChlorine, chlorineResidual)
	out.Set(model.Chlorides, float32(float64(in.Get(model.Chlorides))*chlorideByproduct))
	return out
}

func phosphorusPrecipitation(in model.WaterSample, _ model.UnitConfig) model.WaterSample {
	out := in
	removed := remove(&out, in, model.Phosphorus, 0.75)
	out.Set(model.TSS, float32(float64(in.Get(model.TSS))+removed*precipitateYield))
	return out
}

func electrocoagulation(in model.WaterSample, _ model.UnitConfig) model.WaterSample {
	out := in
	remove(&out, in, model.HeavyMetals, 0.80)
	remove(&out, in, model.TSS, 0.60)
	out.Set(model.PH, in.Get(model.PH)+electrocoagulationPHRise)
	out.Set(model.Conductivity, in.Get(model.Conductivity)+electrocoagulationECRise)
	return out
}

func heatExchange(in model.WaterSample, cfg model.UnitConfig) model.WaterSample {
	out := in
	out.Set(model.Temperature, cfg.TemperatureC)
	return out
}

// remove reduces p by fraction of its inlet value and returns the amount removed.
func remove(out *model.WaterSample, in model.WaterSample, p model.Parameter, fraction float64) float64 {
	before := float64(in.Get(p))
	removed := before * fraction
	out.Set(p, clampNonNegative(before-removed))
	return removed
}

// consume subtracts amount from the current value of p, never going below zero.
func consume(out *model.WaterSample, p model.Parameter, amount float64) {
	out.Set(p, clampNonNegative(float64(out.Get(p))-amount))
}

func clampNonNegative(v float64) float32 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return float32(v)
}
