package display

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// FFT2 returns the 2D discrete Fourier transform of m with the zero frequency
// moved to the centre. Rows are transformed first, then columns.
func FFT2(m *mat.CDense) *mat.CDense {
	rows, cols := m.Dims()
	out := mat.NewCDense(rows, cols, nil)

	rowFFT := fourier.NewCmplxFFT(cols)
	in := make([]complex128, cols)
	coeff := make([]complex128, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			in[j] = m.At(i, j)
		}
		rowFFT.Coefficients(coeff, in)
		for j := 0; j < cols; j++ {
			out.Set(i, (j+cols/2)%cols, coeff[j])
		}
	}

	colFFT := fourier.NewCmplxFFT(rows)
	in = make([]complex128, rows)
	coeff = make([]complex128, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			in[i] = out.At(i, j)
		}
		colFFT.Coefficients(coeff, in)
		for i := 0; i < rows; i++ {
			out.Set((i+rows/2)%rows, j, coeff[i])
		}
	}
	return out
}
