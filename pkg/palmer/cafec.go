package palmer

// Coefficients are the CAFEC ratios, one per calendar month (index 0 is January).
type Coefficients struct {
	Alpha Calendar `json:"alpha"` // ET / PET
	Beta  Calendar `json:"beta"`  // recharge / potential recharge
	Gamma Calendar `json:"gamma"` // runoff / potential runoff
	Delta Calendar `json:"delta"` // loss / potential loss
}

// cafecRatio divides two calibration-period means. Both zero gives 1 and a
// zero denominator alone gives 0. A calendar month without data is NaN.
func cafecRatio(num, den float64) float64 {
	switch {
	case Missing(num) || Missing(den):
		return num / den
	case den == 0 && num == 0:
		return 1
	case den == 0:
		return 0
	}
	return num / den
}

// ComputeCoefficients derives the CAFEC coefficients from the water balance
// over the calibration window. The window must already be resolved against
// the data range with ResolveWindow.
func ComputeCoefficients(wb *WaterBalance, startYear int, w Window) Coefficients {
	sp := w.indices(startYear, len(wb.PET))

	et := calendarMeans(wb.ET, sp)
	pet := calendarMeans(wb.PET, sp)
	r := calendarMeans(wb.Recharge, sp)
	pr := calendarMeans(wb.PotentialRecharge, sp)
	ro := calendarMeans(wb.Runoff, sp)
	pro := calendarMeans(wb.PotentialRunoff, sp)
	l := calendarMeans(wb.Loss, sp)
	pl := calendarMeans(wb.PotentialLoss, sp)

	var c Coefficients
	for m := 0; m < MonthsPerYear; m++ {
		c.Alpha[m] = cafecRatio(et[m], pet[m])
		c.Beta[m] = cafecRatio(r[m], pr[m])
		c.Gamma[m] = cafecRatio(ro[m], pro[m])
		c.Delta[m] = cafecRatio(l[m], pl[m])
	}
	return c
}

// cafecPrecipitation is the precipitation expected for month k given the
// climate and the antecedent conditions.
func (c Coefficients) cafecPrecipitation(wb *WaterBalance, k int) float64 {
	m := k % MonthsPerYear
	return c.Alpha[m]*wb.PET[k] +
		c.Beta[m]*wb.PotentialRecharge[k] +
		c.Gamma[m]*wb.PotentialRunoff[k] -
		c.Delta[m]*wb.PotentialLoss[k]
}
