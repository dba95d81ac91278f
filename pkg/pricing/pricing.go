// Package pricing holds the per-unit cost and carbon rates shared by
// the opportunity detector and the diff analyzer. Both must price a
// resource change identically.
package pricing

// HoursPerMonth is the fixed month length used for all monthly
// projections.
const HoursPerMonth = 730.0

// JoulesPerKWh converts cumulative energy readings to kilowatt-hours.
const JoulesPerKWh = 3_600_000.0

// bytesPerGB matches the collector's memory accounting (1024^3 bytes).
const bytesPerGB = 1024.0 * 1024.0 * 1024.0

// Rates are the externally configured unit prices. CPU and memory carry
// independent rates; a single scalar ratio across both dimensions would
// misprice workloads because the unit prices differ.
type Rates struct {
	CPUPerCoreHour  float64 // USD per core-hour
	MemPerGBHour    float64 // USD per GB-hour
	CarbonIntensity float64 // g CO2e per kWh
	WattsPerCore    float64 // linear cpu power approximation
	HoursPerMonth   float64
}

// MonthlyCPUCost prices a CPU allocation in USD per month.
func (r Rates) MonthlyCPUCost(cores float64) float64 {
	return cores * r.CPUPerCoreHour * r.HoursPerMonth
}

// MonthlyMemCost prices a memory allocation in USD per month.
func (r Rates) MonthlyMemCost(bytes float64) float64 {
	return bytes / bytesPerGB * r.MemPerGBHour * r.HoursPerMonth
}

// MonthlyCost prices a cpu/memory allocation per dimension and sums.
func (r Rates) MonthlyCost(cores, memBytes float64) float64 {
	return r.MonthlyCPUCost(cores) + r.MonthlyMemCost(memBytes)
}

// CarbonFromJoules converts an energy reading to grams of CO2e.
func (r Rates) CarbonFromJoules(joules float64) float64 {
	return joules / JoulesPerKWh * r.CarbonIntensity
}

// MonthlyCarbonFromCores estimates monthly grams of CO2e for a CPU
// allocation. Carbon is taken as linear in allocated cores; memory and
// node baseline power draw are not modeled.
func (r Rates) MonthlyCarbonFromCores(cores float64) float64 {
	kwh := cores * r.WattsPerCore / 1000 * r.HoursPerMonth
	return kwh * r.CarbonIntensity
}
