// Package palmer computes the Palmer drought indices (PDSI, PHDI, PMDI and
// the Z index) from monthly precipitation and potential evapotranspiration,
// with optional Wells et al. (2004) self-calibration.
//
// The pipeline is a two-layer soil water balance, CAFEC coefficients and the
// climatic characteristic K over a calibration window, the Z index, and a
// spell state machine that settles ambiguous months retroactively once a
// later month confirms whether a spell began or ended. Every step is a pure
// function of its inputs, so independent stations can be computed in
// parallel.
//
// Missing months are NaN throughout and are never treated as zero.
package palmer
