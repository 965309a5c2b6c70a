package scoring

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type lstmLayer struct {
	wih  *mat.Dense    // 4H x in
	whh  *mat.Dense    // 4H x H
	bias *mat.VecDense // b_ih + b_hh
}

// LSTM is a stacked LSTM with a single-output linear head applied to the last
// step's hidden state. Gate rows follow the i, f, g, o layout.
type LSTM struct {
	inputSize  int
	hiddenSize int
	layers     []lstmLayer
	fcWeight   *mat.VecDense
	fcBias     float64
}

// Predict runs the forward pass. Scratch buffers are per call.
func (m *LSTM) Predict(ctx context.Context, seq Sequence) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkShape(seq, m.inputSize); err != nil {
		return 0, err
	}

	H := m.hiddenSize
	inputs := make([]*mat.VecDense, len(seq))
	for t, step := range seq {
		inputs[t] = mat.NewVecDense(len(step), append([]float64(nil), step...))
	}

	gates := mat.NewVecDense(4*H, nil)
	recurrent := mat.NewVecDense(4*H, nil)

	for _, layer := range m.layers {
		h := mat.NewVecDense(H, nil)
		c := mat.NewVecDense(H, nil)
		outputs := make([]*mat.VecDense, len(inputs))

		for t, x := range inputs {
			gates.MulVec(layer.wih, x)
			recurrent.MulVec(layer.whh, h)
			gates.AddVec(gates, recurrent)
			gates.AddVec(gates, layer.bias)

			for j := 0; j < H; j++ {
				in := sigmoid(gates.AtVec(j))
				forget := sigmoid(gates.AtVec(H + j))
				cell := math.Tanh(gates.AtVec(2*H + j))
				out := sigmoid(gates.AtVec(3*H + j))

				cj := forget*c.AtVec(j) + in*cell
				c.SetVec(j, cj)
				h.SetVec(j, out*math.Tanh(cj))
			}
			outputs[t] = mat.VecDenseCopyOf(h)
		}
		inputs = outputs
	}

	last := inputs[len(inputs)-1]
	return checkOutput(mat.Dot(m.fcWeight, last) + m.fcBias)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func newLSTM(inputSize, hiddenSize int, layers []LayerWeights, fc *DenseWeights) (*LSTM, error) {
	if inputSize <= 0 || hiddenSize <= 0 {
		return nil, fmt.Errorf("lstm needs positive input_size and hidden_size")
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("lstm needs at least one layer")
	}
	if fc == nil || len(fc.Weight) != hiddenSize {
		return nil, fmt.Errorf("lstm fc weight must have %d entries", hiddenSize)
	}

	m := &LSTM{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		fcWeight:   mat.NewVecDense(hiddenSize, append([]float64(nil), fc.Weight...)),
		fcBias:     fc.Bias,
	}

	in := inputSize
	for i, lw := range layers {
		wih, err := denseFromRows(lw.WIH, 4*hiddenSize, in)
		if err != nil {
			return nil, fmt.Errorf("layer %d w_ih: %w", i, err)
		}
		whh, err := denseFromRows(lw.WHH, 4*hiddenSize, hiddenSize)
		if err != nil {
			return nil, fmt.Errorf("layer %d w_hh: %w", i, err)
		}
		bias, err := combinedBias(lw.BIH, lw.BHH, 4*hiddenSize)
		if err != nil {
			return nil, fmt.Errorf("layer %d bias: %w", i, err)
		}
		m.layers = append(m.layers, lstmLayer{wih: wih, whh: whh, bias: bias})
		in = hiddenSize
	}

	return m, nil
}

func denseFromRows(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("got %d rows, want %d", len(rows), r)
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

// combinedBias sums b_ih and b_hh. Either may be omitted.
func combinedBias(bih, bhh []float64, n int) (*mat.VecDense, error) {
	out := make([]float64, n)
	for _, b := range [][]float64{bih, bhh} {
		if b == nil {
			continue
		}
		if len(b) != n {
			return nil, fmt.Errorf("got %d entries, want %d", len(b), n)
		}
		for i, v := range b {
			out[i] += v
		}
	}
	return mat.NewVecDense(n, out), nil
}
