package finance

import "math"

// invSqrt2Pi 1/√(2π)
const invSqrt2Pi = 0.3989422804014327

// NormalCDF 标准正态分布累积分布函数 N(x) = (1 + erf(x/√2)) / 2。
func NormalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// NormalPDF 标准正态分布概率密度函数 φ(x)。
func NormalPDF(x float64) float64 {
	return invSqrt2Pi * math.Exp(-0.5*x*x)
}
