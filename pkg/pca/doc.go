// Package pca fits principal component models on in-control process data
// and computes the multivariate monitoring statistics of new observations.
//
// A model is fitted once on a reference matrix (rows are observations,
// columns are process variables) and is immutable afterwards:
//
//	model, err := pca.Fit(training, pca.FitOptions{
//	    Components: 2,
//	    Scaling:    pca.ScalingAutoscale,
//	})
//	scores, err := model.Score(batch)
//	// scores.T2[i], scores.Q[i]
//
// Hotelling's T² measures variation inside the retained component
// subspace, each score normalised by its component variance. Q (squared
// prediction error) is the squared norm of the part of an observation the
// retained components do not reconstruct. When every component is
// retained the residual subspace is empty and Q is exactly zero.
//
// Scoring always reuses the training mean and scale vectors; a model is
// never refitted on the data it scores.
package pca
